package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// RedisConfig contains Redis connection and pool settings.
type RedisConfig struct {
	// Connection can be specified as a URL or individual components
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"min=0,max=15"`

	TLSEnabled bool `envconfig:"TLS_ENABLED" default:"false"`

	// Connection Pool
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10" validate:"min=1"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2" validate:"min=0"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`

	// Ping/connection retry settings
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"1s"`
}

// Address returns the Redis address in host:port format.
// If URL is provided, it returns that for the redis client to parse.
func (c *RedisConfig) Address() string {
	if c.URL != "" {
		return c.URL
	}
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate checks if the Redis configuration is valid.
func (c *RedisConfig) Validate(environment string) error {
	if c.URL != "" {
		if err := validateRedisURL(c.URL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
	} else {
		if err := validateHost(c.Host, "redis"); err != nil {
			return err
		}
		if err := validatePort(c.Port, "redis"); err != nil {
			return err
		}
		if environment == EnvironmentProduction {
			if len(c.Password) < 12 {
				return fmt.Errorf("redis password must be at least 12 characters in production")
			}
			if !c.TLSEnabled {
				return fmt.Errorf("redis TLS must be enabled in production environment")
			}
		}
	}

	if c.MinIdleConns > c.PoolSize {
		return fmt.Errorf("min_idle_conns (%d) cannot be greater than pool_size (%d)", c.MinIdleConns, c.PoolSize)
	}

	return nil
}

// IsConfigured returns true if Redis has all required configuration to connect.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "")
}

// validateRedisURL accepts redis:// and rediss:// URLs with an optional DB path.
func validateRedisURL(redisURL string) error {
	parsed, err := parseAndValidateURL(redisURL, []string{"redis", "rediss"})
	if err != nil {
		return err
	}

	dbStr := strings.TrimPrefix(parsed.Path, "/")
	if dbStr == "" {
		return nil
	}
	dbNum, err := strconv.Atoi(dbStr)
	if err != nil {
		return fmt.Errorf("database number must be a valid integer: %s", dbStr)
	}
	if dbNum < 0 || dbNum > 15 {
		return fmt.Errorf("database number must be between 0 and 15, got %d", dbNum)
	}
	return nil
}
