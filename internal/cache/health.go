package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// HealthChecker reports Redis reachability to the readiness probe.
type HealthChecker struct {
	client redis.UniversalClient
}

// NewHealthChecker wraps client.
func NewHealthChecker(client redis.UniversalClient) *HealthChecker {
	return &HealthChecker{client: client}
}

func (h *HealthChecker) Name() string { return "redis" }

// Check pings the server within ctx.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return errors.New("redis client is nil")
	}
	return h.client.Ping(ctx).Err()
}
