package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisSource reads a document stored under a Redis key. Writers announce new
// documents on a Pub/Sub channel, which is how running instances learn about
// changes without polling.
type RedisSource struct {
	client  redis.UniversalClient
	key     string
	channel string
	logger  *slog.Logger
}

// NewRedisSource returns a source for key, invalidated through channel.
func NewRedisSource(logger *slog.Logger, client redis.UniversalClient, key, channel string) *RedisSource {
	if logger == nil {
		panic("source: logger cannot be nil")
	}
	if client == nil {
		panic("source: redis client cannot be nil")
	}
	return &RedisSource{client: client, key: key, channel: channel, logger: logger}
}

func (s *RedisSource) Name() string { return "redis:" + s.key }

func (s *RedisSource) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: redis key %s", ErrNotFound, s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.key, err)
	}
	return data, nil
}

func (s *RedisSource) Watch(ctx context.Context, notify func()) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("failed to close subscription", slog.String("error", err.Error()))
		}
	}()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed to rule updates", slog.String("channel", s.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.logger.Debug("rule update announced", slog.String("payload", msg.Payload))
			notify()
		}
	}
}

// Publish stores data and announces it atomically. The payload of the
// announcement is informational only.
func Publish(ctx context.Context, client redis.UniversalClient, key, channel string, data []byte, payload string) error {
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.Publish(ctx, channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish rule document: %w", err)
	}
	return nil
}
