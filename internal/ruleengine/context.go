package ruleengine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Context is an override store bound to a Model. Lookups check the overrides,
// then the model, then the key's default. Nothing is cached: every lookup
// evaluates the rules again.
//
// A Context is not safe for concurrent use. Use Clone to hand a copy to
// another goroutine; the model itself may be shared freely.
type Context struct {
	engine    *Engine
	model     *Model
	overrides map[KeyID]any
	// chain holds the keys currently being resolved, outermost first.
	chain []KeyID
}

// Resolution is the detailed outcome of a lookup.
type Resolution struct {
	Key    KeyID
	Value  any
	Source Source
	Model  string
	Err    error
}

// Model returns the model c resolves through.
func (c *Context) Model() *Model { return c.model }

// Engine returns the engine c was created by.
func (c *Context) Engine() *Engine { return c.engine }

func (c *Context) logger() *slog.Logger { return c.engine.logger }

// Get resolves key. It panics with a *RecursionError when the engine's depth
// limit is exceeded; use Resolve to receive that as an error instead.
func Get[T any](c *Context, key Key[T]) T {
	return cast[T](c.lookup(key.id, true).Value)
}

// Resolve is Get with error reporting. A type mismatch met along the way is
// returned together with the value that was used instead of the bad one.
func Resolve[T any](c *Context, key Key[T]) (T, error) {
	res := c.Trace(key.id)
	return cast[T](res.Value), res.Err
}

// Find resolves key from overrides and rules only. It reports false where Get
// would have fallen back to the default.
func Find[T any](c *Context, key Key[T]) (T, bool) {
	res := c.lookup(key.id, false)
	return cast[T](res.Value), res.Source != SourceNone
}

// Set overrides key. The override wins over every rule.
func Set[T any](c *Context, key Key[T], value T) {
	c.overrides[key.id] = value
}

// Value resolves id without a static type. It panics like Get.
func (c *Context) Value(id KeyID) any {
	return c.lookup(id, true).Value
}

// SetValue is the untyped form of Set.
func (c *Context) SetValue(id KeyID, value any) error {
	if id.IsZero() {
		return ErrInvalidKey
	}
	if !id.accepts(value) {
		return id.mismatch(value)
	}
	c.overrides[id] = value
	return nil
}

// Unset removes the override for id, if any.
func (c *Context) Unset(id KeyID) {
	delete(c.overrides, id)
}

// HasOverride reports whether id is overridden in c.
func (c *Context) HasOverride(id KeyID) bool {
	_, ok := c.overrides[id]
	return ok
}

// Overrides returns a copy of the override map.
func (c *Context) Overrides() map[KeyID]any {
	return maps.Clone(c.overrides)
}

// Clone returns a context with the same model and a copy of the overrides.
// Changes to either context are not visible in the other.
func (c *Context) Clone() *Context {
	return &Context{
		engine:    c.engine,
		model:     c.model,
		overrides: maps.Clone(c.overrides),
	}
}

// Trace resolves id and reports where the value came from. A recursion error
// raised by this lookup is returned in Err rather than panicking, unless Trace
// itself runs inside another lookup.
func (c *Context) Trace(id KeyID) (res Resolution) {
	if len(c.chain) == 0 {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			rerr, ok := r.(*RecursionError)
			if !ok {
				panic(r)
			}
			c.chain = c.chain[:0]
			res = Resolution{Key: id, Err: rerr}
		}()
	}
	return c.lookup(id, true)
}

func (c *Context) lookup(id KeyID, withDefault bool) Resolution {
	if id.IsZero() {
		panic(ErrInvalidKey)
	}
	if v, ok := c.overrides[id]; ok {
		res := Resolution{Key: id, Value: v, Source: SourceOverride}
		c.report(res, len(c.chain)+1)
		return res
	}

	c.enter(id)
	defer c.leave()

	mr := c.model.resolve(id, c)
	res := Resolution{Key: id, Err: mr.mismatch}
	switch {
	case mr.found:
		res.Value, res.Source, res.Model = mr.value, SourceRule, mr.model
	case withDefault:
		res.Value, res.Source = c.defaultFor(id, &res), SourceDefault
	}
	c.report(res, len(c.chain))
	return res
}

func (c *Context) defaultFor(id KeyID, res *Resolution) any {
	v := id.defaultValue(c)
	if id.accepts(v) {
		return v
	}
	err := id.mismatch(v)
	c.logger().Warn("default produced a value of the wrong type",
		"key", id.Name(),
		"error", err,
	)
	if res.Err == nil {
		res.Err = err
	}
	return reflect.Zero(id.Type()).Interface()
}

func (c *Context) enter(id KeyID) {
	if limit := c.engine.maxDepth; limit > 0 && len(c.chain) >= limit {
		err := &RecursionError{Limit: limit, Chain: append(slices.Clone(c.chain), id)}
		c.logger().Error("resolution aborted",
			"key", id.Name(),
			"error", err,
		)
		c.engine.observer.OnResolve(ResolveEvent{Key: id, Depth: len(err.Chain), Err: err})
		panic(err)
	}
	c.chain = append(c.chain, id)
}

func (c *Context) leave() {
	c.chain = c.chain[:len(c.chain)-1]
}

func (c *Context) report(res Resolution, depth int) {
	if c.logger().Enabled(context.Background(), slog.LevelDebug) {
		c.logger().Debug("resolved key",
			"key", res.Key.Name(),
			"source", res.Source.String(),
			"model", res.Model,
			"depth", depth,
		)
	}
	c.engine.observer.OnResolve(ResolveEvent{
		Key:    res.Key,
		Source: res.Source,
		Model:  res.Model,
		Depth:  depth,
		Err:    res.Err,
	})
}

func (c *Context) String() string {
	names := make([]string, 0, len(c.overrides))
	for id, v := range c.overrides {
		names = append(names, fmt.Sprintf("%s=%v", id.Name(), v))
	}
	slices.Sort(names)
	return fmt.Sprintf("<Context %s {%s}>", c.model, strings.Join(names, ", "))
}

func cast[T any](v any) T {
	t, _ := v.(T)
	return t
}
