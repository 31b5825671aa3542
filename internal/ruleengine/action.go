package ruleengine

import (
	"fmt"
)

// Action computes the value of its target key.
//
// Fire returns false when the action has no value to offer. The owning model
// then stops scanning and the lookup continues with its fallback models.
type Action interface {
	Target() KeyID
	Fire(c *Context) (any, bool)
	String() string

	action()
}

// constantAction always yields the same value.
type constantAction struct {
	target KeyID
	value  any
}

// Assign returns an action that sets key to value.
func Assign[T any](key Key[T], value T) Action {
	return &constantAction{target: key.id, value: value}
}

// AssignValue is the untyped form of Assign. The value is type-checked against
// the key immediately.
func AssignValue(id KeyID, value any) (Action, error) {
	if id.IsZero() {
		return nil, ErrInvalidKey
	}
	if !id.accepts(value) {
		return nil, id.mismatch(value)
	}
	return &constantAction{target: id, value: value}, nil
}

func (a *constantAction) Target() KeyID             { return a.target }
func (a *constantAction) Fire(*Context) (any, bool) { return a.value, true }
func (a *constantAction) action()                   {}

func (a *constantAction) String() string {
	if s, ok := a.value.(string); ok {
		return fmt.Sprintf("%s <= %q", a.target.Name(), s)
	}
	return fmt.Sprintf("%s <= %v", a.target.Name(), a.value)
}

// redirectAction resolves another key and hands its value over unchanged.
type redirectAction struct {
	target KeyID
	source KeyID
}

// AssignKey makes target take the value source resolves to in the same context.
// A key can not be redirected to itself.
func AssignKey[T any](target, source Key[T]) (Action, error) {
	return AssignKeyID(target.id, source.id)
}

// MustAssignKey is AssignKey that panics on error.
func MustAssignKey[T any](target, source Key[T]) Action {
	a, err := AssignKey(target, source)
	if err != nil {
		panic(err)
	}
	return a
}

// AssignKeyID is the untyped form of AssignKey. Both keys must share a value type.
func AssignKeyID(target, source KeyID) (Action, error) {
	if target.IsZero() || source.IsZero() {
		return nil, ErrInvalidKey
	}
	if target == source {
		return nil, fmt.Errorf("%w: %q", ErrSelfReference, target.Name())
	}
	if target.Type() != source.Type() {
		return nil, fmt.Errorf("%w: %s <= %s", ErrIncompatibleKeys, target, source)
	}
	return &redirectAction{target: target, source: source}, nil
}

func (a *redirectAction) Target() KeyID { return a.target }
func (a *redirectAction) action()       {}

func (a *redirectAction) Fire(c *Context) (any, bool) {
	return c.Value(a.source), true
}

func (a *redirectAction) String() string {
	return fmt.Sprintf("%s <= %s", a.target.Name(), a.source.Name())
}

// customAction runs caller code.
type customAction struct {
	target KeyID
	desc   string
	fn     func(c *Context) (any, error)
}

// AssignFunc computes key with fn on every firing.
func AssignFunc[T any](key Key[T], fn func(c *Context) T) Action {
	if fn == nil {
		panic("ruleengine: action function cannot be nil")
	}
	return &customAction{
		target: key.id,
		desc:   "<func>",
		fn:     func(c *Context) (any, error) { return fn(c), nil },
	}
}

// AssignDynamic computes id with an untyped function. The result is checked
// against the key type when the rule fires. A returned error means no value.
func AssignDynamic(id KeyID, desc string, fn func(c *Context) (any, error)) Action {
	if id.IsZero() {
		panic(ErrInvalidKey)
	}
	if fn == nil {
		panic("ruleengine: action function cannot be nil")
	}
	return &customAction{target: id, desc: desc, fn: fn}
}

func (a *customAction) Target() KeyID { return a.target }
func (a *customAction) action()       {}

func (a *customAction) Fire(c *Context) (any, bool) {
	v, err := a.fn(c)
	if err != nil {
		c.logger().Warn("action failed",
			"key", a.target.Name(),
			"action", a.desc,
			"error", err,
		)
		return nil, false
	}
	return v, true
}

func (a *customAction) String() string {
	return fmt.Sprintf("%s <= %s", a.target.Name(), a.desc)
}
