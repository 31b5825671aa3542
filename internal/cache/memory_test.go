package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/testsupport"
)

func TestMemoryCache_Basics(t *testing.T) {
	t.Parallel()

	c, err := cache.NewMemoryCache[string](64, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, found := c.Get("missing")
	assert.False(t, found)

	c.Set("a", "compiled-a")
	got, found := c.Get("a")
	assert.True(t, found)
	assert.Equal(t, "compiled-a", got)

	c.Del("a")
	_, found = c.Get("a")
	assert.False(t, found)

	c.Set("b", "x")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_GetOrCompute(t *testing.T) {
	t.Parallel()

	c, err := cache.NewMemoryCache[int](64, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for range 3 {
		v, err := c.GetOrCompute("answer", compute)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 1, calls, "Later calls are served from memory")

	_, err = c.GetOrCompute("broken", func() (int, error) { return 0, errors.New("syntax error") })
	assert.Error(t, err)
	_, found := c.Get("broken")
	assert.False(t, found, "Errors are never cached")
}

func TestMemoryCache_Metrics(t *testing.T) {
	c, err := cache.NewMemoryCache[string](10, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	t.Run("records misses", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "mimir_program_cache_misses_total", nil, 1, func() {
			_, _ = c.Get("non-existent-key")
		})
	})

	t.Run("records hits", func(t *testing.T) {
		c.Set("expr-1", "program")
		testsupport.AssertMetricDelta(t, "mimir_program_cache_hits_total", nil, 1, func() {
			_, found := c.Get("expr-1")
			assert.True(t, found)
		})
	})

	t.Run("collector reports the item count", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go c.RunMetricsCollector(ctx, 10*time.Millisecond)

		for i := range 5 {
			c.Set(fmt.Sprintf("k-%d", i), "p")
		}

		require.Eventually(t, func() bool {
			return testsupport.GetMetricValue(t, "mimir_program_cache_items_count", nil) >= 5
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestOptions(t *testing.T) {
	t.Parallel()

	t.Run("Should build options from components", func(t *testing.T) {
		opts, err := cache.Options(&config.RedisConfig{Host: "localhost", Port: "6380", DB: 2, TLSEnabled: true, PoolSize: 7})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 7, opts.PoolSize)
		assert.NotNil(t, opts.TLSConfig)
	})

	t.Run("Should parse a URL", func(t *testing.T) {
		opts, err := cache.Options(&config.RedisConfig{URL: "redis://:pw@redis.example.com:6379/3"})
		require.NoError(t, err)
		assert.Equal(t, "redis.example.com:6379", opts.Addr)
		assert.Equal(t, "pw", opts.Password)
		assert.Equal(t, 3, opts.DB)
	})

	t.Run("Should reject nil config", func(t *testing.T) {
		_, err := cache.Options(nil)
		assert.Error(t, err)
	})
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	t.Parallel()

	cfg := &config.RedisConfig{
		Host:           "127.0.0.1",
		Port:           "1",
		PoolSize:       1,
		DialTimeout:    100 * time.Millisecond,
		PingMaxRetries: 2,
		PingBackoff:    10 * time.Millisecond,
	}

	_, err := cache.NewRedisClient(context.Background(), cfg)

	assert.ErrorContains(t, err, "after 2 attempts")
}

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "redis", cache.NewHealthChecker(nil).Name())
	assert.Error(t, cache.NewHealthChecker(nil).Check(context.Background()))

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	assert.Error(t, cache.NewHealthChecker(client).Check(context.Background()))
}
