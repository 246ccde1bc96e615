package health

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s3conn/internal/config"
	"github.com/s3conn/internal/logger"
)

// Server serves Prometheus metrics and health endpoints.
type Server struct {
	server *http.Server
}

// NewServer creates a new metrics/health HTTP server. A nil gatherer uses
// the default registry; a nil checker keeps /readyz always ready.
func NewServer(cfg config.Metrics, gatherer prometheus.Gatherer, checker *Checker) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle(cfg.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Liveness probe
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness probe
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if checker != nil && !checker.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("endpoint unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{
			Addr:    cfg.Address,
			Handler: mux,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving metrics.
func (s *Server) Start() error {
	logger.New("module", "metrics").Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
