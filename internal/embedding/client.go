package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-matcher/internal/matcher"
	"github.com/kozaktomas/face-matcher/internal/metrics"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client computes face descriptors using the embedding server.
type Client struct {
	baseURL     string
	dim         int
	minDetScore float64
	client      *http.Client
	ready       atomic.Bool
	model       atomic.Value // string, reported by the server
}

// NewClient creates a new embedding client.
// dim is the expected descriptor length; 0 disables the check.
func NewClient(baseURL string, dim int, minDetScore float64) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		dim:         dim,
		minDetScore: minDetScore,
		client:      &http.Client{Timeout: 2 * time.Minute},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Init checks that the embedding server is up with its models loaded.
// It is meant to be called once at startup; Describe refuses to run until it succeeds.
func (c *Client) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding server not healthy (status %d): %s", resp.StatusCode, string(body))
	}

	var health healthResponse
	// Older servers answer with plain text; a 200 is enough.
	if err := json.Unmarshal(body, &health); err == nil && health.Model != "" {
		c.model.Store(health.Model)
	}

	c.ready.Store(true)
	slog.Info("embedding provider ready", "url", c.baseURL, "model", c.Model())
	return nil
}

// Ready reports whether Init has completed successfully.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// Model returns the model name reported by the server, if any.
func (c *Client) Model() string {
	if m, ok := c.model.Load().(string); ok {
		return m
	}
	return ""
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
// The part carries an explicit Content-Type header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// Describe returns the descriptor of the face with the highest detection score.
func (c *Client) Describe(ctx context.Context, imageData []byte) (matcher.Descriptor, error) {
	if !c.Ready() {
		return nil, ErrNotReady
	}

	start := time.Now()
	desc, err := c.describe(ctx, imageData)

	outcome := metrics.OutcomeFace
	switch {
	case errors.Is(err, ErrNoFaceDetected):
		outcome = metrics.OutcomeNoFace
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveEmbedding(outcome, time.Since(start))

	return desc, err
}

func (c *Client) describe(ctx context.Context, imageData []byte) (matcher.Descriptor, error) {
	resp, err := c.ComputeFaceEmbeddings(ctx, imageData)
	if err != nil {
		return nil, err
	}

	best := BestFace(resp.Faces, c.minDetScore)
	if best == nil {
		return nil, ErrNoFaceDetected
	}

	if c.dim > 0 && len(best.Embedding) != c.dim {
		return nil, fmt.Errorf("%w: embedding server returned %d dimensions, expected %d",
			matcher.ErrInvalidInput, len(best.Embedding), c.dim)
	}

	return matcher.Descriptor(best.Embedding), nil
}

// BestFace picks the face with the highest detection score at or above minDetScore.
// Faces without an embedding are ignored. Returns nil if nothing qualifies.
func BestFace(faces []FaceDetection, minDetScore float64) *FaceDetection {
	var best *FaceDetection
	for i := range faces {
		f := &faces[i]
		if len(f.Embedding) == 0 || f.DetScore < minDetScore {
			continue
		}
		if best == nil || f.DetScore > best.DetScore {
			best = f
		}
	}
	return best
}
