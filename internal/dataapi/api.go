// Package dataapi implements the HTTP API that resolves keys against the
// active rule bundle.
package dataapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/ruledoc"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// BundleProvider yields the active bundle, or nil while none is loaded.
// *syncer.Service satisfies it.
type BundleProvider interface {
	Bundle() *ruledoc.Bundle
}

// API holds the dependencies and the router of the data API.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	logger  *slog.Logger
	bundles BundleProvider
	engine  *ruleengine.Engine
	config  config.DataConfig
}

// NewAPI creates the API. Panics if a mandatory dependency is missing.
func NewAPI(logger *slog.Logger, bundles BundleProvider, engine *ruleengine.Engine, cfg config.DataConfig) *API {
	if logger == nil {
		panic("dataapi: logger cannot be nil")
	}
	if bundles == nil {
		panic("dataapi: bundle provider cannot be nil")
	}
	if engine == nil {
		panic("dataapi: engine cannot be nil")
	}

	if cfg.MaxKeysPerRequest <= 0 {
		cfg.MaxKeysPerRequest = 100
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	api := &API{
		Router:  chi.NewRouter(),
		logger:  logger,
		bundles: bundles,
		engine:  engine,
		config:  cfg,
	}
	api.configureRoutes()
	return api
}

func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger(a.logger))
	a.Router.Use(Metrics)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1/models", func(r chi.Router) {
		r.Get("/", a.handleListModels)

		r.Route("/{model}", func(r chi.Router) {
			r.Get("/", a.handleDescribeModel)
			r.With(middleware.RequestSize(a.config.MaxBodyBytes)).Post("/resolve", a.handleResolve)
		})
	})
}

func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.config.Address(),
		Handler:      a.Router,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
		// mitigation against Slowloris attacks
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("data api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("shutting down data api")
	return srv.Shutdown(shutdownCtx)
}
