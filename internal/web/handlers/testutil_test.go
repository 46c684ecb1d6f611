package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-matcher/internal/config"
	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/imageload"
	"github.com/kozaktomas/face-matcher/internal/matcher"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// colorProvider derives a descriptor from the mean colour of an image.
// Near-black images are reported as having no face.
type colorProvider struct {
	notReady bool
}

func (p *colorProvider) Ready() bool {
	return !p.notReady
}

func (p *colorProvider) Describe(ctx context.Context, data []byte) (matcher.Descriptor, error) {
	if p.notReady {
		return nil, embedding.ErrNotReady
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var r, g, b, n float64
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr)
			g += float64(cg)
			b += float64(cb)
			n++
		}
	}
	desc := matcher.Descriptor{
		float32(r / n / 0xffff),
		float32(g / n / 0xffff),
		float32(b / n / 0xffff),
	}
	if desc[0]+desc[1]+desc[2] < 0.05 {
		return nil, embedding.ErrNoFaceDetected
	}
	return desc, nil
}

// pngBytes encodes a solid-colour PNG
func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := range 16 {
		for y := range 16 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// setupMockImageServer serves /red.png, /blue.png and /black.png
func setupMockImageServer(t *testing.T) *httptest.Server {
	t.Helper()

	images := map[string][]byte{
		"/red.png":   pngBytes(t, red),
		"/blue.png":  pngBytes(t, blue),
		"/black.png": pngBytes(t, black),
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
}

// testConfig creates a minimal config for testing with an isolated upload directory
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Match: config.MatchConfig{
			Threshold:    0.6,
			ReferenceDir: t.TempDir(),
			Extensions:   []string{".jpg", ".jpeg", ".png"},
			Concurrency:  2,
		},
		Image: config.ImageConfig{
			FetchTimeout: 5 * time.Second,
			UploadDir:    filepath.Join(t.TempDir(), "uploads"),
		},
	}
}

// newTestCompareHandler wires a compare handler with the colour provider
func newTestCompareHandler(t *testing.T, cfg *config.Config, provider embedding.Provider) *CompareHandler {
	t.Helper()
	return NewCompareHandler(cfg, provider, imageload.NewLoader(5*time.Second, 1<<20, 256))
}

// multipartRequest builds a multipart POST with optional form fields and an optional image file
func multipartRequest(t *testing.T, path string, fields map[string]string, file []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("image", "upload.png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(file)
	}
	writer.Close()

	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// assertDirEmpty checks that no uploaded file was left behind
func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected upload directory to be empty, found %d entries", len(entries))
	}
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertCompareError checks for an error body that also reports matched=false
func assertCompareError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
	if matched, ok := result["matched"].(bool); !ok || matched {
		t.Errorf("expected matched=false in error body, got %v", result["matched"])
	}
}

// unwritableDir returns a directory path that cannot be created because its parent is a file
func unwritableDir(t *testing.T) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("file"), 0o600); err != nil {
		t.Fatalf("failed to write blocker file: %v", err)
	}
	return filepath.Join(blocker, "uploads")
}
