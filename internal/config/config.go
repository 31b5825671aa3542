// Package config provides centralized configuration management for Mimir services.
// It uses envconfig for environment variable loading and validator for validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentProduction is the production environment identifier
	EnvironmentProduction = "production"

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "MIMIR"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Server        ServerConfig        `envconfig:"SERVER"`
	Engine        EngineConfig        `envconfig:"ENGINE"`
	Source        SourceConfig        `envconfig:"SOURCE"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"mimir"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Data DataConfig `envconfig:"DATA"`
}

// Load reads configuration from environment variables with the MIMIR prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs validation on the loaded configuration using go-playground/validator.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := c.Server.Data.Validate(); err != nil {
		return err
	}

	if err := c.Source.Validate(); err != nil {
		return err
	}

	// Redis is only dialled when documents are read from it.
	if c.Source.Kind == SourceRedis {
		if err := c.Redis.Validate(c.App.Environment); err != nil {
			return err
		}
	}

	if err := c.Observability.Validate(); err != nil {
		return err
	}

	return nil
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		slog.String("data_addr", c.Server.Data.Address()),
		slog.Int("engine_max_depth", c.Engine.MaxDepth),
		slog.Int("program_cache_capacity", c.Engine.ProgramCacheCapacity),
		slog.String("source_kind", c.Source.Kind),
		slog.Duration("reload_interval", c.Source.ReloadInterval),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
		slog.String("observability_port", c.Observability.Port),
	)
}

// Shared validation helper functions

// validatePort checks if port is valid (1-65535)
func validatePort(port, context string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", context)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", context, err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", context, portNum)
	}
	return nil
}

// validateNoWhitespace checks if a value is not empty and contains no whitespace
func validateNoWhitespace(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if strings.ContainsAny(value, " \t\r\n") {
		return fmt.Errorf("%s cannot contain whitespace", fieldName)
	}
	return nil
}

// validateHost checks if host is not empty and contains no whitespace
func validateHost(host, context string) error {
	return validateNoWhitespace(host, context+" host")
}

// parseAndValidateURL is a helper for parsing URLs with scheme validation
func parseAndValidateURL(rawURL string, allowedSchemes []string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if !slices.Contains(allowedSchemes, parsed.Scheme) {
		return nil, fmt.Errorf("invalid scheme '%s', must be one of: %v", parsed.Scheme, allowedSchemes)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("host is required in URL")
	}

	return parsed, nil
}
