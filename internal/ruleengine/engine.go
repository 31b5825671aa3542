package ruleengine

import (
	"log/slog"
	"sync"
)

// DefaultMaxDepth bounds nested lookups within one resolution.
const DefaultMaxDepth = 64

// Engine holds the configuration shared by the contexts it creates.
type Engine struct {
	logger   *slog.Logger // Dedicated logger instance (DI)
	maxDepth int
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the recursion guard. Zero disables it.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxDepth = n
		}
	}
}

// WithObserver registers o to receive resolution events.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		logger:   logger,
		maxDepth: DefaultMaxDepth,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxDepth returns the configured recursion guard.
func (e *Engine) MaxDepth() int { return e.maxDepth }

// NewContext returns an empty context resolving through model.
// A nil model resolves every key to its default.
func (e *Engine) NewContext(model *Model) *Context {
	if model == nil {
		model = NewModel()
	}
	return &Context{
		engine:    e,
		model:     model,
		overrides: make(map[KeyID]any),
	}
}

var defaultEngine = sync.OnceValue(func() *Engine { return New(nil) })

// NewContext returns a context using an engine with default settings.
func NewContext(model *Model) *Context {
	return defaultEngine().NewContext(model)
}
