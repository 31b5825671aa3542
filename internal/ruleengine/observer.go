package ruleengine

// Source tells where a resolved value came from.
type Source int

const (
	SourceNone Source = iota
	SourceOverride
	SourceRule
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceRule:
		return "rule"
	case SourceDefault:
		return "default"
	default:
		return "none"
	}
}

// ResolveEvent describes one key lookup.
type ResolveEvent struct {
	Key    KeyID
	Source Source
	// Model is the name of the model whose rule fired, empty otherwise.
	Model string
	// Depth is the number of lookups on the stack, including this one.
	Depth int
	// Err is a type mismatch encountered on the way, or a recursion error.
	Err error
}

// Observer receives an event for every lookup performed by a Context.
// Implementations must be safe for concurrent use and must not resolve keys.
type Observer interface {
	OnResolve(ev ResolveEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev ResolveEvent)

func (f ObserverFunc) OnResolve(ev ResolveEvent) { f(ev) }

type nopObserver struct{}

func (nopObserver) OnResolve(ResolveEvent) {}
