package ruleengine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Sentinel errors for rule construction and resolution.
var (
	// ErrTypeMismatch indicates a value whose runtime type disagrees with the
	// type declared by its key.
	ErrTypeMismatch = errors.New("value type does not match key type")

	// ErrRecursionLimit indicates a resolution chain exceeded the configured depth.
	// It is the only way a redirect cycle surfaces, and it is always fatal.
	ErrRecursionLimit = errors.New("resolution recursion limit exceeded")

	// ErrSelfReference indicates a key-redirect action pointing a key at itself.
	ErrSelfReference = errors.New("key redirects to itself")

	// ErrIncompatibleKeys indicates a redirect between keys of different types.
	ErrIncompatibleKeys = errors.New("keys have incompatible types")

	// ErrDuplicateKey indicates a key name registered twice.
	ErrDuplicateKey = errors.New("key already registered")

	// ErrUnknownKey indicates a key name that is not registered.
	ErrUnknownKey = errors.New("unknown key")

	// ErrInvalidKey indicates the zero KeyID or an empty key name.
	ErrInvalidKey = errors.New("invalid key")
)

// TypeMismatchError reports which key received a value of the wrong type.
type TypeMismatchError struct {
	Key  KeyID
	Want reflect.Type
	Got  reflect.Type
}

func (e *TypeMismatchError) Error() string {
	got := "nil"
	if e.Got != nil {
		got = e.Got.String()
	}
	return fmt.Sprintf("key %q: expected %s, got %s", e.Key.Name(), e.Want, got)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// RecursionError carries the chain of keys that was being resolved when the
// depth limit was hit. The last entry is the key that could not be entered.
type RecursionError struct {
	Limit int
	Chain []KeyID
}

func (e *RecursionError) Error() string {
	names := make([]string, len(e.Chain))
	for i, id := range e.Chain {
		names[i] = id.Name()
	}
	return fmt.Sprintf("%s (limit %d): %s", ErrRecursionLimit, e.Limit, strings.Join(names, " -> "))
}

func (e *RecursionError) Unwrap() error {
	return ErrRecursionLimit
}
