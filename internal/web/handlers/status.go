package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-matcher/internal/constants"
	"github.com/kozaktomas/face-matcher/internal/embedding"
)

// StatusHandler reports service state on the root endpoint
type StatusHandler struct {
	provider embedding.Provider
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(provider embedding.Provider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// StatusResponse represents the root status response
type StatusResponse struct {
	Service      string `json:"service"`
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"modelsLoaded"`
}

// Get returns the service status. Providers without an initialization step count as loaded.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	loaded := h.provider != nil
	if rr, ok := h.provider.(embedding.ReadinessReporter); ok {
		loaded = rr.Ready()
	}

	respondJSON(w, http.StatusOK, StatusResponse{
		Service:      constants.ServiceName,
		Status:       "running",
		ModelsLoaded: loaded,
	})
}
