package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported document sources.
const (
	SourceFile  = "file"
	SourceRedis = "redis"
)

// SourceConfig selects where rule documents are loaded from.
type SourceConfig struct {
	Kind string `envconfig:"KIND" default:"file" validate:"oneof=file redis"`

	// Path is the YAML document read by the file source.
	Path string `envconfig:"FILE" default:"rules.yaml"`

	// RedisKey holds the document when the redis source is used.
	RedisKey string `envconfig:"REDIS_KEY" default:"mimir:rules"`

	// RedisChannel announces document updates.
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"mimir:rules:updates"`

	// ReloadInterval forces a periodic reload on top of change notifications.
	// Zero disables polling.
	ReloadInterval time.Duration `envconfig:"RELOAD_INTERVAL" default:"30s" validate:"min=0"`

	// Debounce coalesces bursts of change notifications.
	Debounce time.Duration `envconfig:"DEBOUNCE" default:"250ms" validate:"min=0"`
}

// Validate checks the fields required by the selected source.
func (c *SourceConfig) Validate() error {
	switch c.Kind {
	case SourceFile:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("source path cannot be empty")
		}
	case SourceRedis:
		if err := validateNoWhitespace(c.RedisKey, "source redis key"); err != nil {
			return err
		}
		if err := validateNoWhitespace(c.RedisChannel, "source redis channel"); err != nil {
			return err
		}
		if c.RedisKey == c.RedisChannel {
			return fmt.Errorf("source redis key and channel must differ")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Kind)
	}
	return nil
}
