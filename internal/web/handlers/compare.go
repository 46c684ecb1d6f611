package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-matcher/internal/config"
	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/imageload"
	"github.com/kozaktomas/face-matcher/internal/matcher"
	"github.com/kozaktomas/face-matcher/internal/metrics"
)

// CompareHandler handles face comparison endpoints
type CompareHandler struct {
	config   *config.Config
	provider embedding.Provider
	loader   *imageload.Loader
}

// NewCompareHandler creates a new compare handler
func NewCompareHandler(cfg *config.Config, provider embedding.Provider, loader *imageload.Loader) *CompareHandler {
	return &CompareHandler{
		config:   cfg,
		provider: provider,
		loader:   loader,
	}
}

// CompareRequest represents a two-URL comparison request
type CompareRequest struct {
	Image1    string   `json:"image1"`
	Image2    string   `json:"image2"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// CompareResponse represents the outcome of comparing two faces
type CompareResponse struct {
	Matched         bool    `json:"matched"`
	Similarity      float64 `json:"similarity"`
	Distance        float64 `json:"distance"`
	PercentageMatch string  `json:"percentageMatch"`
	Threshold       float64 `json:"threshold"`
}

// imageSource loads raw image bytes for one side of a comparison
type imageSource func(ctx context.Context) ([]byte, error)

// describePair loads and describes both images concurrently.
// The first failure cancels the other side.
func (h *CompareHandler) describePair(ctx context.Context, first, second imageSource) (matcher.Descriptor, matcher.Descriptor, error) {
	var descriptors [2]matcher.Descriptor

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range []imageSource{first, second} {
		g.Go(func() error {
			data, err := src(gctx)
			if err != nil {
				return fmt.Errorf("image%d: %w", i+1, err)
			}
			desc, err := h.provider.Describe(gctx, data)
			if err != nil {
				return fmt.Errorf("image%d: %w", i+1, err)
			}
			descriptors[i] = desc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return descriptors[0], descriptors[1], nil
}

// respondPair compares two descriptors and writes the result.
func (h *CompareHandler) respondPair(w http.ResponseWriter, kind string, a, b matcher.Descriptor, threshold float64) {
	result, err := matcher.CompareSinglePair(a, b, threshold)
	if err != nil {
		h.fail(w, kind, err)
		return
	}

	outcome := metrics.OutcomeNotMatched
	if result.Matched {
		outcome = metrics.OutcomeMatched
	}
	metrics.RecordComparison(kind, outcome)

	respondJSON(w, http.StatusOK, CompareResponse{
		Matched:         result.Matched,
		Similarity:      result.Similarity,
		Distance:        result.Distance,
		PercentageMatch: matcher.PercentageMatch(result.Similarity),
		Threshold:       result.Threshold,
	})
}

// fail logs err, records it and writes the mapped error response.
func (h *CompareHandler) fail(w http.ResponseWriter, kind string, err error) {
	status, message := classifyError(err)
	h.respondFailure(w, kind, err, status, message)
}

// respondFailure logs and records err, then writes status and message.
func (h *CompareHandler) respondFailure(w http.ResponseWriter, kind string, err error, status int, message string) {
	outcome := metrics.OutcomeError
	if errors.Is(err, embedding.ErrNoFaceDetected) {
		outcome = metrics.OutcomeNoFace
		slog.Info("comparison without face", "kind", kind, "error", sanitizeForLog(err.Error()))
	} else {
		slog.Warn("comparison failed", "kind", kind, "status", status, "error", sanitizeForLog(err.Error()))
	}
	metrics.RecordComparison(kind, outcome)

	respondCompareError(w, status, message)
}

// Compare compares the faces in two remote images.
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondCompareError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Image1 == "" || req.Image2 == "" {
		respondCompareError(w, http.StatusBadRequest, "image1 and image2 are required")
		return
	}
	if !imageload.IsURL(req.Image1) || !imageload.IsURL(req.Image2) {
		respondCompareError(w, http.StatusBadRequest, "image1 and image2 must be http(s) URLs")
		return
	}

	threshold := h.config.Match.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	a, b, err := h.describePair(r.Context(),
		func(ctx context.Context) ([]byte, error) { return h.loader.FromURL(ctx, req.Image1) },
		func(ctx context.Context) ([]byte, error) { return h.loader.FromURL(ctx, req.Image2) },
	)
	if err != nil {
		h.fail(w, "pair", err)
		return
	}

	h.respondPair(w, "pair", a, b, threshold)
}

// CompareMixed compares a remote image with an uploaded one.
// The uploaded file is removed once the request finishes, whatever the outcome.
func (h *CompareHandler) CompareMixed(w http.ResponseWriter, r *http.Request) {
	if err := parseUploadForm(r); err != nil {
		respondCompareError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	imageURL := r.FormValue("imageUrl")
	if imageURL == "" {
		respondCompareError(w, http.StatusBadRequest, "imageUrl is required")
		return
	}
	if !imageload.IsURL(imageURL) {
		respondCompareError(w, http.StatusBadRequest, "imageUrl must be an http(s) URL")
		return
	}

	threshold, ok := parseThreshold(r.FormValue("threshold"), h.config.Match.Threshold)
	if !ok {
		respondCompareError(w, http.StatusBadRequest, "threshold must be a number")
		return
	}

	upload, err := saveUpload(r, h.config.Image.UploadDir)
	if errors.Is(err, errMissingUpload) {
		respondCompareError(w, http.StatusBadRequest, "image file is required")
		return
	}
	if err != nil {
		h.respondFailure(w, "mixed", err, http.StatusInternalServerError, errUploadStorage)
		return
	}
	defer upload.cleanup()

	a, b, err := h.describePair(r.Context(),
		func(ctx context.Context) ([]byte, error) { return h.loader.FromURL(ctx, imageURL) },
		func(ctx context.Context) ([]byte, error) { return h.loader.FromFile(upload.Path) },
	)
	if err != nil {
		h.fail(w, "mixed", err)
		return
	}

	h.respondPair(w, "mixed", a, b, threshold)
}
