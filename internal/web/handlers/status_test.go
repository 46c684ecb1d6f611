package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-matcher/internal/constants"
)

func TestStatusHandler_Get(t *testing.T) {
	tests := []struct {
		name     string
		provider *colorProvider
		loaded   bool
	}{
		{"ready", &colorProvider{}, true},
		{"not ready", &colorProvider{notReady: true}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewStatusHandler(tc.provider)

			req := httptest.NewRequest("GET", "/", nil)
			recorder := httptest.NewRecorder()
			h.Get(recorder, req)

			assertStatusCode(t, recorder, http.StatusOK)
			assertContentType(t, recorder, "application/json")

			var result StatusResponse
			parseJSONResponse(t, recorder, &result)
			if result.Service != constants.ServiceName {
				t.Errorf("expected service '%s', got '%s'", constants.ServiceName, result.Service)
			}
			if result.Status != "running" {
				t.Errorf("expected status 'running', got '%s'", result.Status)
			}
			if result.ModelsLoaded != tc.loaded {
				t.Errorf("expected modelsLoaded %v, got %v", tc.loaded, result.ModelsLoaded)
			}
		})
	}
}
