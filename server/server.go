// Package server exposes the embedding service over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/histtext/lexivec"
	"github.com/histtext/lexivec/config"
)

// Server wires the service facade to the HTTP surface.
type Server struct {
	svc     *lexivec.Service
	cfg     *config.Manager
	logger  *slog.Logger
	limiter limiterState
}

// New creates a Server. Auth and rate-limit settings are read from the
// config manager per request so hot reloads take effect immediately.
func New(svc *lexivec.Service, cfg *config.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, cfg: cfg, logger: logger}
}

// Handler builds the routed and middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/compute-neighbors", s.handleComputeNeighbors)
	mux.HandleFunc("GET /api/embeddings/advanced-stats", s.handleAdvancedStats)
	mux.HandleFunc("POST /api/embeddings/reset-metrics", s.handleResetMetrics)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if mc := s.cfg.Get().Metrics; mc.Enabled {
		path := mc.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}

	var h http.Handler = mux
	h = s.authenticate(h)
	h = s.rateLimit(h)
	h = s.accessLog(h)
	h = requestID(h)
	return h
}
