// Package source fetches rule documents and announces when they change.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/mimir/internal/config"
)

// ErrNotFound indicates the source holds no document yet.
var ErrNotFound = errors.New("rule document not found")

// Source yields raw rule documents.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Load returns the current document.
	Load(ctx context.Context) ([]byte, error)

	// Watch calls notify whenever the document may have changed. It blocks
	// until ctx is cancelled, returning nil in that case.
	Watch(ctx context.Context, notify func()) error
}

// New builds the source selected by cfg. client is only used by the redis
// source and may be nil otherwise.
func New(logger *slog.Logger, cfg *config.SourceConfig, client redis.UniversalClient) (Source, error) {
	switch cfg.Kind {
	case config.SourceFile:
		return NewFileSource(logger, cfg.Path, cfg.Debounce), nil
	case config.SourceRedis:
		if client == nil {
			return nil, errors.New("redis source requires a redis client")
		}
		return NewRedisSource(logger, client, cfg.RedisKey, cfg.RedisChannel), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
