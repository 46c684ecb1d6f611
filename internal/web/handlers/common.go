package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/imageload"
	"github.com/kozaktomas/face-matcher/internal/matcher"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// errNoFace is returned to clients when either image has no detectable face.
const errNoFace = "No face detected in one or both images"

// errQueryNoFace is returned by the ranking endpoint when the uploaded query has no face.
const errQueryNoFace = "No face detected in query image"

// errUploadStorage hides filesystem details of a failed upload from clients.
const errUploadStorage = "failed to store uploaded image"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondCompareError sends an error response for comparison endpoints,
// which always state that nothing matched.
func respondCompareError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"error":   message,
		"matched": false,
	})
}

// classifyError maps loader, provider and matcher errors to an HTTP status and client message.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, embedding.ErrNoFaceDetected):
		return http.StatusBadRequest, errNoFace
	case errors.Is(err, imageload.ErrUnsupportedImage):
		return http.StatusBadRequest, "unsupported image format"
	case errors.Is(err, imageload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "image too large"
	case errors.Is(err, imageload.ErrFetch):
		return http.StatusBadGateway, "failed to fetch image"
	case errors.Is(err, embedding.ErrNotReady):
		return http.StatusServiceUnavailable, "face recognition models not loaded yet"
	case errors.Is(err, matcher.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "face descriptors are not comparable"
	default:
		return http.StatusInternalServerError, "failed to compare faces"
	}
}

// parseThreshold parses an optional threshold form value, falling back to def.
// NaN and infinities are rejected.
func parseThreshold(raw string, def float64) (float64, bool) {
	if raw == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
