package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"algoTradeBot/internal/ports"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the /metrics scrape endpoint.
type Server struct {
	port   int
	logger ports.Logger
	srv    *http.Server
}

// NewServer creates a metrics server listening on the given port.
func NewServer(port int, logger ports.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	return &Server{port: port, logger: logger}, nil
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info(ctx, "metrics server listening", map[string]interface{}{"port": s.port})
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, err, "metrics server failed")
		}
	}()
}

// Stop shuts the server down, waiting for in-flight scrapes up to the
// context deadline. Safe to call without a prior Start.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info(ctx, "stopping metrics server")
	return s.srv.Shutdown(ctx)
}
