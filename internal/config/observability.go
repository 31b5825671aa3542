package config

import "time"

// ObservabilityConfig holds configuration for the observability server (metrics, probes).
type ObservabilityConfig struct {
	// Enabled turns the observability server on. The CLI runs without it.
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Port defines where the observability server listens.
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout is the unified safety valve for Read/Write/Idle operations.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Validate checks ObservabilityConfig fields for correctness.
func (o *ObservabilityConfig) Validate() error {
	if !o.Enabled {
		return nil
	}
	return validatePort(o.Port, "observability")
}
