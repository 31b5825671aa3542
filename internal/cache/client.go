package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/logger"
)

// Options translates cfg into go-redis options. URL configuration wins over
// the individual fields.
func Options(cfg *config.RedisConfig) (*redis.Options, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}

	var opts *redis.Options
	if strings.Contains(cfg.Address(), "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.MaxRetries = cfg.MaxRetries
	return opts, nil
}

// NewRedisClient connects to Redis and waits until it answers PING, retrying
// with exponential backoff up to cfg.PingMaxRetries times.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	log := logger.FromContext(ctx)
	backoff := cfg.PingBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.PingMaxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, max(cfg.DialTimeout, time.Second))
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			log.Info("redis connected", slog.String("addr", opts.Addr), slog.Int("attempt", attempt))
			return client, nil
		}

		log.Warn("redis ping failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", cfg.PingMaxRetries),
			slog.Any("error", lastErr),
		)
		if attempt == cfg.PingMaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.PingMaxRetries, lastErr)
}
