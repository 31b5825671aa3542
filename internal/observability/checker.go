package observability

import "context"

// Checker reports the health of one dependency for the readiness probe.
// Check must honour ctx and be safe to call concurrently.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc turns a function into a named Checker.
type CheckerFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.ComponentName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
