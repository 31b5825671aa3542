package ruleengine

import (
	"fmt"
	"reflect"
)

// KeyID is the opaque identity of a logical key.
//
// It is comparable and usable as a map key. Every call to NewKey, NewKeyFunc or
// NewDynamicKey creates a distinct identity, even for equal names, so a KeyID is
// one-to-one with the value type it was declared with. The zero KeyID is invalid.
type KeyID struct {
	info *keyInfo
}

type keyInfo struct {
	name string
	typ  reflect.Type
	def  func(*Context) any
}

// Name returns the human-readable name the key was declared with.
func (id KeyID) Name() string {
	if id.info == nil {
		return ""
	}
	return id.info.name
}

// Type returns the declared value type of the key.
func (id KeyID) Type() reflect.Type {
	if id.info == nil {
		return nil
	}
	return id.info.typ
}

// IsZero reports whether id was never created by a key constructor.
func (id KeyID) IsZero() bool {
	return id.info == nil
}

func (id KeyID) String() string {
	if id.info == nil {
		return "<nil key>"
	}
	return fmt.Sprintf("%s(%s)", id.info.name, id.info.typ)
}

// defaultValue computes the static (optionally context-aware) default.
func (id KeyID) defaultValue(c *Context) any {
	if id.info.def == nil {
		return reflect.Zero(id.info.typ).Interface()
	}
	return id.info.def(c)
}

// accepts reports whether v can be stored under this key without conversion.
func (id KeyID) accepts(v any) bool {
	typ := id.info.typ
	if v == nil {
		switch typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		default:
			return false
		}
	}
	vt := reflect.TypeOf(v)
	if typ.Kind() == reflect.Interface {
		return vt.Implements(typ)
	}
	return vt == typ
}

func (id KeyID) mismatch(v any) *TypeMismatchError {
	return &TypeMismatchError{Key: id, Want: id.info.typ, Got: reflect.TypeOf(v)}
}

// Key is a typed handle for a KeyID. Values read and written through a Key[T]
// are statically typed; the engine performs checked conversions at the edges.
type Key[T any] struct {
	id KeyID
}

// NewKey declares a key with a constant default value.
func NewKey[T any](name string, def T) Key[T] {
	return NewKeyFunc(name, func(*Context) T { return def })
}

// NewKeyFunc declares a key whose default is computed from the context.
// The default function may read other keys, but the key itself is never
// resolved through rules again from this path.
func NewKeyFunc[T any](name string, def func(*Context) T) Key[T] {
	if name == "" {
		panic("ruleengine: key name cannot be empty")
	}
	if def == nil {
		panic("ruleengine: key default function cannot be nil")
	}
	return Key[T]{id: KeyID{info: &keyInfo{
		name: name,
		typ:  reflect.TypeFor[T](),
		def:  func(c *Context) any { return def(c) },
	}}}
}

// NewDynamicKey declares a key whose type is only known at runtime, as is the
// case for keys defined in rule documents. def may be nil, in which case the
// zero value of typ is the default.
func NewDynamicKey(name string, typ reflect.Type, def func(*Context) any) (KeyID, error) {
	if name == "" || typ == nil {
		return KeyID{}, fmt.Errorf("%w: name and type are required", ErrInvalidKey)
	}
	return KeyID{info: &keyInfo{name: name, typ: typ, def: def}}, nil
}

// Typed recovers a typed handle from an identity.
func Typed[T any](id KeyID) (Key[T], error) {
	if id.IsZero() {
		return Key[T]{}, ErrInvalidKey
	}
	if want := reflect.TypeFor[T](); id.Type() != want {
		return Key[T]{}, &TypeMismatchError{Key: id, Want: id.Type(), Got: want}
	}
	return Key[T]{id: id}, nil
}

// ID returns the key's identity.
func (k Key[T]) ID() KeyID { return k.id }

// Name returns the key's name.
func (k Key[T]) Name() string { return k.id.Name() }

func (k Key[T]) String() string { return k.id.String() }
