// Package syncer keeps the active rule bundle in step with its source.
//
// Readers never block: the bundle is swapped atomically, and a failed reload
// leaves the previous bundle in place.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/ruledoc"
	"github.com/rafaeljc/mimir/internal/source"
)

// ErrNoBundle is reported by the readiness check until a bundle is loaded.
var ErrNoBundle = errors.New("no rule bundle loaded")

// Reload outcomes, also used as metric labels.
const (
	StatusApplied   = "applied"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// Config holds the configuration for the Syncer service.
type Config struct {
	// Interval is the duration between forced reloads. Zero disables polling
	// and relies on change notifications alone.
	Interval time.Duration
}

// Service orchestrates the reload process.
type Service struct {
	logger  *slog.Logger
	config  Config
	src     source.Source
	opts    ruledoc.Options
	bundle  atomic.Pointer[ruledoc.Bundle]
	trigger chan struct{}
}

// New creates a new Syncer service.
func New(logger *slog.Logger, cfg Config, src source.Source, opts ruledoc.Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if src == nil {
		panic("syncer: source cannot be nil")
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}

	return &Service{
		logger:  logger,
		config:  cfg,
		src:     src,
		opts:    opts,
		trigger: make(chan struct{}, 1),
	}
}

// Bundle returns the active bundle, or nil before the first successful load.
func (s *Service) Bundle() *ruledoc.Bundle {
	return s.bundle.Load()
}

// Notify schedules a reload. Notifications arriving while one is pending are
// coalesced.
func (s *Service) Notify() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run loads the document and keeps reloading it until ctx is cancelled.
// A failing watcher is logged and leaves polling in charge.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service",
		slog.String("source", s.src.Name()),
		slog.String("interval", s.config.Interval.String()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.src.Watch(gctx, s.Notify); err != nil {
			s.logger.Error("source watch failed, relying on polling", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		s.loop(gctx)
		return nil
	})

	err := g.Wait()
	s.logger.Info("syncer service stopped")
	return err
}

func (s *Service) loop(ctx context.Context) {
	// Run once immediately on startup
	if _, err := s.Reload(ctx); err != nil {
		s.logger.Error("initial load failed", slog.String("error", err.Error()))
	}

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-tick:
		}
		if _, err := s.Reload(ctx); err != nil && ctx.Err() == nil {
			// Keep serving the previous bundle and retry on the next signal.
			s.logger.Error("reload failed", slog.String("error", err.Error()))
		}
	}
}

// Reload fetches and compiles the document once. Unchanged documents are not
// recompiled.
func (s *Service) Reload(ctx context.Context) (string, error) {
	start := time.Now()
	defer func() {
		observability.SyncerReloadDuration.Observe(time.Since(start).Seconds())
	}()

	data, err := s.src.Load(ctx)
	if err != nil {
		observability.SyncerReloadsTotal.WithLabelValues(StatusFailed).Inc()
		return StatusFailed, err
	}

	current := s.bundle.Load()
	if current != nil && current.Fingerprint == ruledoc.Fingerprint(data) {
		observability.SyncerReloadsTotal.WithLabelValues(StatusUnchanged).Inc()
		return StatusUnchanged, nil
	}

	next, err := ruledoc.Load(data, s.opts)
	if err != nil {
		observability.SyncerReloadsTotal.WithLabelValues(StatusFailed).Inc()
		return StatusFailed, err
	}

	s.bundle.Store(next)
	observability.SyncerReloadsTotal.WithLabelValues(StatusApplied).Inc()
	observability.BundleRules.Set(float64(next.Rules))
	observability.BundleLoadedTimestamp.Set(float64(next.LoadedAt.Unix()))

	s.logger.Info("rule bundle applied",
		slog.String("revision", next.Revision),
		slog.Int("models", len(next.Models)),
		slog.Int("rules", next.Rules),
		slog.String("duration", time.Since(start).String()),
	)
	return StatusApplied, nil
}

// Name implements observability.Checker.
func (s *Service) Name() string { return "bundle" }

// Check implements observability.Checker: the service is ready once a bundle
// is active.
func (s *Service) Check(context.Context) error {
	if s.bundle.Load() == nil {
		return ErrNoBundle
	}
	return nil
}
