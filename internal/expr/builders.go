package expr

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// ErrOutputType is returned when an expression can never produce the required type.
var ErrOutputType = errors.New("expression has the wrong output type")

// Predicate compiles a boolean expression. Its specificity is the number of
// distinct keys the expression reads, at least 1.
func (e *Environment) Predicate(expression string) (ruleengine.Predicate, error) {
	compiled, err := e.compileFor(expression, reflect.TypeFor[bool]())
	if err != nil {
		return nil, err
	}
	return e.predicate(compiled, max(compiled.refs, 1)), nil
}

// PredicateWithSpecificity compiles a boolean expression with an explicit specificity.
func (e *Environment) PredicateWithSpecificity(expression string, specificity int) (ruleengine.Predicate, error) {
	compiled, err := e.compileFor(expression, reflect.TypeFor[bool]())
	if err != nil {
		return nil, err
	}
	return e.predicate(compiled, specificity), nil
}

func (e *Environment) predicate(compiled *Compiled, specificity int) ruleengine.Predicate {
	return ruleengine.FuncWithSpecificity(specificity, compiled.Expression, func(c *ruleengine.Context) bool {
		out, err := e.eval(compiled, c)
		if err != nil {
			e.logger.Warn("predicate evaluation failed",
				slog.String("expr", compiled.Expression),
				slog.String("error", err.Error()),
			)
			return false
		}
		matched, ok := out.Value().(bool)
		return ok && matched
	})
}

// Action compiles an expression computing the value of target.
func (e *Environment) Action(target ruleengine.KeyID, expression string) (ruleengine.Action, error) {
	if target.IsZero() {
		return nil, ruleengine.ErrInvalidKey
	}
	compiled, err := e.compileFor(expression, target.Type())
	if err != nil {
		return nil, err
	}
	return ruleengine.AssignDynamic(target, "expr("+compiled.Expression+")", func(c *ruleengine.Context) (any, error) {
		return e.value(compiled, c, target.Type())
	}), nil
}

// Default compiles an expression usable as the default of a dynamic key of type typ.
// Evaluation failures yield the zero value of typ.
func (e *Environment) Default(typ reflect.Type, expression string) (func(*ruleengine.Context) any, error) {
	compiled, err := e.compileFor(expression, typ)
	if err != nil {
		return nil, err
	}
	return func(c *ruleengine.Context) any {
		v, err := e.value(compiled, c, typ)
		if err != nil {
			e.logger.Warn("default evaluation failed",
				slog.String("expr", compiled.Expression),
				slog.String("error", err.Error()),
			)
			return reflect.Zero(typ).Interface()
		}
		return v
	}, nil
}

func (e *Environment) value(compiled *Compiled, c *ruleengine.Context, typ reflect.Type) (any, error) {
	out, err := e.eval(compiled, c)
	if err != nil {
		return nil, err
	}
	return native(out, typ), nil
}

// compileFor compiles expression and rejects statically known output types that
// cannot be assigned to typ.
func (e *Environment) compileFor(expression string, typ reflect.Type) (*Compiled, error) {
	compiled, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}

	want := celType(typ)
	out := compiled.output
	if out == nil || out.Kind() == types.DynKind || want.Kind() == types.DynKind {
		return compiled, nil
	}
	if !want.IsAssignableType(out) {
		return nil, fmt.Errorf("%w: %q yields %s, want %s", ErrOutputType, compiled.Expression, out, want)
	}
	return compiled, nil
}

// native converts a CEL value to typ. When no conversion exists the raw value is
// returned so the engine can report the mismatch.
func native(v ref.Val, typ reflect.Type) any {
	if converted, err := v.ConvertToNative(typ); err == nil {
		return converted
	}
	return v.Value()
}
