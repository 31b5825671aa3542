// Package main initializes and runs the Mimir data service.
//
// It acts as the composition root: it loads configuration, compiles the rule
// document through the syncer, and serves the resolution and observability
// APIs until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/dataapi"
	"github.com/rafaeljc/mimir/internal/expr"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/ruledoc"
	"github.com/rafaeljc/mimir/internal/ruleengine"
	"github.com/rafaeljc/mimir/internal/source"
	"github.com/rafaeljc/mimir/internal/syncer"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup
	// -------------------------------------------------------------------------
	programs, err := cache.NewMemoryCache[*expr.Compiled](cfg.Engine.ProgramCacheCapacity, cfg.Engine.ProgramCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create program cache: %w", err)
	}
	defer programs.Close()

	var (
		redisClient *redis.Client
		checkers    []observability.Checker
	)
	if cfg.Source.Kind == config.SourceRedis {
		redisClient, err = cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("failed to close redis client", slog.String("error", err.Error()))
			}
		}()
		checkers = append(checkers, cache.NewHealthChecker(redisClient))
	}

	var client redis.UniversalClient
	if redisClient != nil {
		client = redisClient
	}
	src, err := source.New(log, &cfg.Source, client)
	if err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	syncSvc := syncer.New(log, syncer.Config{Interval: cfg.Source.ReloadInterval}, src, ruledoc.Options{
		Logger:   log,
		Programs: programs,
	})
	checkers = append(checkers, syncSvc)

	engine := ruleengine.New(log,
		ruleengine.WithMaxDepth(cfg.Engine.MaxDepth),
		ruleengine.WithObserver(observability.MetricsObserver{}),
	)
	api := dataapi.NewAPI(log, syncSvc, engine, cfg.Server.Data)

	// -------------------------------------------------------------------------
	// 4. Run
	// -------------------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return syncSvc.Run(gctx) })
	g.Go(func() error { return api.Run(gctx) })
	g.Go(func() error {
		programs.RunMetricsCollector(gctx, 15*time.Second)
		return nil
	})
	if cfg.Observability.Enabled {
		obs := observability.NewServer(log, &cfg.Observability, checkers...)
		g.Go(func() error { return obs.Run(gctx) })
	}

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return ignoreCanceled(err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	select {
	case err := <-done:
		log.Info("service exited successfully")
		return ignoreCanceled(err)
	case <-time.After(cfg.App.ShutdownTimeout):
		return fmt.Errorf("shutdown did not finish within %s", cfg.App.ShutdownTimeout)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
