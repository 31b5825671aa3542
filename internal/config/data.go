package config

import (
	"fmt"
	"net"
	"time"
)

// DataConfig configures the HTTP resolution API.
type DataConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"5s" validate:"gt=0"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s" validate:"gt=0"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps the size of a resolve request body.
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"1048576" validate:"min=1024"`

	// MaxKeysPerRequest caps how many keys a single resolve call may ask for.
	MaxKeysPerRequest int `envconfig:"MAX_KEYS_PER_REQUEST" default:"100" validate:"min=1"`
}

// Address returns the listen address in host:port form.
func (c *DataConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate performs validation on the DataConfig.
func (c *DataConfig) Validate() error {
	if err := validatePort(c.Port, "data api"); err != nil {
		return err
	}
	if err := validateHost(c.Host, "data api"); err != nil {
		return err
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("data api idle timeout cannot be negative")
	}
	return nil
}
