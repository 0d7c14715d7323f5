package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/config"
)

// Pinger is anything the health endpoint can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front of the compliance backend
type Server struct {
	config     config.ServerConfig
	httpServer *http.Server
	handler    *Handler
	logger     *zap.Logger
	probes     map[string]Pinger
}

// NewServer creates the API server around an already-wired handler
func NewServer(cfg config.ServerConfig, handler *Handler, logger *zap.Logger, probes map[string]Pinger) *Server {
	s := &Server{
		config:  cfg,
		handler: handler,
		logger:  logger,
		probes:  probes,
	}

	mux := s.setupRoutes()

	middlewares := []Middleware{
		requestIDMiddleware,
		loggingMiddleware(logger),
		recoveryMiddleware(logger),
		rateLimitMiddleware(cfg.RateLimit),
	}
	var h http.Handler = mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	v1 := http.NewServeMux()
	v1.HandleFunc("POST /trackers", s.handler.handleCreateTracker)
	v1.HandleFunc("GET /trackers/{id}/compliance", s.handler.handleGetCompliance)
	v1.HandleFunc("POST /trackers/{id}/payments", s.handler.handleApplyPayment)
	v1.HandleFunc("POST /trackers/{id}/penalties/{penaltyID}/waive", s.handler.handleWaivePenalty)
	v1.HandleFunc("POST /evaluations", s.handler.handleEvaluate)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", v1))
	return mux
}

// Start runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown() error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.probes))
	for name, probe := range s.probes {
		if err := probe.Ping(ctx); err != nil {
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
