package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/kozaktomas/face-matcher/internal/matcher"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

// setupMockEmbeddingServer creates a mock embedding server answering /health and /embed/face
func setupMockEmbeddingServer(t *testing.T, faces FaceResponse) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "model": "buffalo_l"})
	})
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			http.Error(w, "unexpected content type "+ct, http.StatusBadRequest)
			return
		}
		io.Copy(io.Discard, file)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(faces)
	})

	return httptest.NewServer(mux)
}

func initClient(t *testing.T, url string, dim int, minDetScore float64) *Client {
	t.Helper()
	c := NewClient(url, dim, minDetScore)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return c
}

func TestClient_Init(t *testing.T) {
	server := setupMockEmbeddingServer(t, FaceResponse{})
	defer server.Close()

	c := NewClient(server.URL+"/", 3, 0)
	if c.Ready() {
		t.Fatal("expected client not ready before Init")
	}

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !c.Ready() {
		t.Error("expected client ready after Init")
	}
	if c.Model() != "buffalo_l" {
		t.Errorf("expected model 'buffalo_l', got '%s'", c.Model())
	}
}

func TestClient_Init_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading models", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, 3, 0)
	if err := c.Init(context.Background()); err == nil {
		t.Fatal("expected error for unhealthy server")
	}
	if c.Ready() {
		t.Error("expected client to stay not ready")
	}
}

func TestClient_Describe_NotReady(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", 3, 0)

	_, err := c.Describe(context.Background(), jpegHeader)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestClient_Describe_PicksHighestScore(t *testing.T) {
	server := setupMockEmbeddingServer(t, FaceResponse{
		FacesCount: 2,
		Model:      "buffalo_l",
		Faces: []FaceDetection{
			{FaceIndex: 0, Dim: 3, Embedding: []float32{1, 0, 0}, DetScore: 0.71},
			{FaceIndex: 1, Dim: 3, Embedding: []float32{0, 1, 0}, DetScore: 0.93},
		},
	})
	defer server.Close()

	c := initClient(t, server.URL, 3, 0)

	desc, err := c.Describe(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(desc, matcher.Descriptor{0, 1, 0}) {
		t.Errorf("expected descriptor of face 1, got %v", desc)
	}
}

func TestClient_Describe_NoFace(t *testing.T) {
	server := setupMockEmbeddingServer(t, FaceResponse{FacesCount: 0, Faces: []FaceDetection{}})
	defer server.Close()

	c := initClient(t, server.URL, 3, 0)

	_, err := c.Describe(context.Background(), jpegHeader)
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestClient_Describe_BelowMinDetScore(t *testing.T) {
	server := setupMockEmbeddingServer(t, FaceResponse{
		FacesCount: 1,
		Faces:      []FaceDetection{{Dim: 3, Embedding: []float32{1, 2, 3}, DetScore: 0.3}},
	})
	defer server.Close()

	c := initClient(t, server.URL, 3, 0.5)

	_, err := c.Describe(context.Background(), jpegHeader)
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestClient_Describe_DimensionMismatch(t *testing.T) {
	server := setupMockEmbeddingServer(t, FaceResponse{
		FacesCount: 1,
		Faces:      []FaceDetection{{Dim: 2, Embedding: []float32{1, 2}, DetScore: 0.9}},
	})
	defer server.Close()

	c := initClient(t, server.URL, 3, 0)

	_, err := c.Describe(context.Background(), jpegHeader)
	if !errors.Is(err, matcher.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClient_Describe_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := initClient(t, server.URL, 0, 0)

	_, err := c.Describe(context.Background(), jpegHeader)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNoFaceDetected) {
		t.Error("server errors must not be reported as no face")
	}
}

func TestBestFace(t *testing.T) {
	tests := []struct {
		name        string
		faces       []FaceDetection
		minDetScore float64
		wantIndex   int // -1 means nil
	}{
		{"no faces", nil, 0, -1},
		{"single face", []FaceDetection{{FaceIndex: 0, Embedding: []float32{1}, DetScore: 0.5}}, 0, 0},
		{
			"highest score wins",
			[]FaceDetection{
				{FaceIndex: 0, Embedding: []float32{1}, DetScore: 0.5},
				{FaceIndex: 1, Embedding: []float32{1}, DetScore: 0.8},
				{FaceIndex: 2, Embedding: []float32{1}, DetScore: 0.7},
			},
			0, 1,
		},
		{
			"first wins on equal score",
			[]FaceDetection{
				{FaceIndex: 0, Embedding: []float32{1}, DetScore: 0.8},
				{FaceIndex: 1, Embedding: []float32{1}, DetScore: 0.8},
			},
			0, 0,
		},
		{
			"skips missing embedding",
			[]FaceDetection{
				{FaceIndex: 0, DetScore: 0.99},
				{FaceIndex: 1, Embedding: []float32{1}, DetScore: 0.6},
			},
			0, 1,
		},
		{
			"all below min score",
			[]FaceDetection{{FaceIndex: 0, Embedding: []float32{1}, DetScore: 0.4}},
			0.5, -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BestFace(tt.faces, tt.minDetScore)
			if tt.wantIndex == -1 {
				if got != nil {
					t.Errorf("expected nil, got face %d", got.FaceIndex)
				}
				return
			}
			if got == nil || got.FaceIndex != tt.wantIndex {
				t.Errorf("expected face %d, got %+v", tt.wantIndex, got)
			}
		})
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", jpegHeader, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp"},
		{"bmp", []byte("BM\x36\x00\x00\x00\x00\x00"), "image/bmp"},
		{"too short", []byte{0xFF, 0xD8}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIMEType(tt.data); got != tt.expected {
				t.Errorf("DetectMIMEType() = %s, want %s", got, tt.expected)
			}
		})
	}
}
