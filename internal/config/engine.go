package config

import "time"

// EngineConfig tunes rule resolution and expression compilation.
type EngineConfig struct {
	// MaxDepth bounds nested key lookups inside one resolution. Zero disables the guard.
	MaxDepth int `envconfig:"MAX_DEPTH" default:"64" validate:"min=0,max=4096"`

	// ProgramCacheCapacity is the hard cap of compiled expressions kept in memory.
	ProgramCacheCapacity int `envconfig:"PROGRAM_CACHE_CAPACITY" default:"4096" validate:"min=16"`

	// ProgramCacheTTL evicts compiled expressions that have not been reused.
	ProgramCacheTTL time.Duration `envconfig:"PROGRAM_CACHE_TTL" default:"30m" validate:"min=1s"`
}
