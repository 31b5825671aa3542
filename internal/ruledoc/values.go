package ruledoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidValue indicates a literal that cannot be converted to a key's type.
var ErrInvalidValue = errors.New("invalid value")

var typesByName = map[string]reflect.Type{
	"string": reflect.TypeFor[string](),
	"int":    reflect.TypeFor[int64](),
	"float":  reflect.TypeFor[float64](),
	"bool":   reflect.TypeFor[bool](),
}

// TypeOf maps a document type name to the Go type keys of that type hold.
func TypeOf(name string) (reflect.Type, error) {
	t, ok := typesByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown key type %q", name)
	}
	return t, nil
}

// TypeName is the inverse of TypeOf.
func TypeName(t reflect.Type) string {
	for name, candidate := range typesByName {
		if candidate == t {
			return name
		}
	}
	return t.String()
}

// Coerce converts a decoded JSON or YAML literal to typ. Integral floats are
// accepted for int keys and integers for float keys; nothing else is converted.
func Coerce(v any, typ reflect.Type) (any, error) {
	if n, ok := v.(json.Number); ok {
		return coerceNumber(n.String(), typ)
	}

	switch typ.Kind() {
	case reflect.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case reflect.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case reflect.Int64:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		case float64:
			// float64(MaxInt64) rounds up to 2^63, which no int64 holds
			if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
				return int64(n), nil
			}
		}
	case reflect.Float64:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case uint64:
			return float64(n), nil
		case float64:
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %v (%T) is not a %s", ErrInvalidValue, v, v, TypeName(typ))
}

func coerceNumber(s string, typ reflect.Type) (any, error) {
	switch typ.Kind() {
	case reflect.Int64, reflect.Float64:
		return ParseValue(s, typ)
	default:
		return nil, fmt.Errorf("%w: number %s is not a %s", ErrInvalidValue, s, TypeName(typ))
	}
}

// ParseValue converts textual input (CLI flags, query strings) to typ.
func ParseValue(s string, typ reflect.Type) (any, error) {
	var (
		v   any
		err error
	)
	switch typ.Kind() {
	case reflect.String:
		return s, nil
	case reflect.Bool:
		v, err = strconv.ParseBool(strings.TrimSpace(s))
	case reflect.Int64:
		v, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case reflect.Float64:
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
	default:
		return nil, fmt.Errorf("%w: unsupported type %s", ErrInvalidValue, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a %s", ErrInvalidValue, s, TypeName(typ))
	}
	return v, nil
}

// decodeNode converts a YAML literal to typ.
func decodeNode(node *yaml.Node, typ reflect.Type) (any, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: %w: expected a scalar", node.Line, ErrInvalidValue)
	}
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	v, err := Coerce(raw, typ)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return v, nil
}

// decodeList converts a scalar or a sequence of scalars to values of typ.
func decodeList(node *yaml.Node, typ reflect.Type) ([]any, error) {
	if node.Kind != yaml.SequenceNode {
		v, err := decodeNode(node, typ)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	out := make([]any, 0, len(node.Content))
	for _, item := range node.Content {
		v, err := decodeNode(item, typ)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
