package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/mimir/internal/config"
)

// Server exposes liveness, readiness and metrics on a dedicated port, away from
// resolution traffic.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   *chi.Mux
	checkers []Checker
}

// NewServer builds the observability server. checkers are consulted by the
// readiness probe.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, checkers ...Checker) *Server {
	if logger == nil {
		panic("observability: logger cannot be nil")
	}
	if cfg == nil {
		panic("observability: config cannot be nil")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		router:   r,
		checkers: checkers,
	}

	r.Get(cfg.LivenessPath, s.liveness)
	r.Get(cfg.ReadinessPath, s.readiness)
	r.Method(http.MethodGet, cfg.MetricsPath, promhttp.Handler())

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         net.JoinHostPort("", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  s.cfg.Timeout * 3,
		// mitigation against Slowloris attacks
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting observability server",
			slog.String("addr", srv.Addr),
			slog.String("liveness_path", s.cfg.LivenessPath),
			slog.String("readiness_path", s.cfg.ReadinessPath),
			slog.String("metrics_path", s.cfg.MetricsPath),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("stopping observability server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
