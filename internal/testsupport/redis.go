package testsupport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/config"
)

// RedisContainer is an ephemeral Redis server with a connected client.
type RedisContainer struct {
	Container testcontainers.Container
	Client    *redis.Client
	Config    *config.RedisConfig
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer runs redis:7-alpine and connects to it through the
// production client factory.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("unexpected redis endpoint %q: %w", endpoint, err)
	}

	cfg := &config.RedisConfig{
		Host:           host,
		Port:           port,
		PoolSize:       5,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		PingMaxRetries: 5,
		PingBackoff:    500 * time.Millisecond,
	}
	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, err
	}

	return &RedisContainer{Container: ctr, Client: client, Config: cfg}, nil
}
