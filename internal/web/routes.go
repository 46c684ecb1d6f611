package web

import (
	"github.com/kozaktomas/face-matcher/internal/web/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	statusHandler := handlers.NewStatusHandler(s.provider)
	compareHandler := handlers.NewCompareHandler(s.config, s.provider, s.loader)

	// Status
	s.router.Get("/", statusHandler.Get)
	s.router.Get("/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	// Comparison
	s.router.Post("/compare", compareHandler.Compare)
	s.router.Post("/compare-mixed", compareHandler.CompareMixed)
	s.router.Post("/rank", compareHandler.Rank)
}
