// Package expr compiles CEL expressions into rule engine predicates, actions and
// defaults. Every key of a registry is visible to expressions as a variable of
// the same name; variables are resolved lazily through the evaluating Context,
// so reading a key from an expression behaves exactly like a key comparison.
package expr

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// ErrCompile wraps every expression compilation failure.
var ErrCompile = errors.New("compile expression")

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// identifier matches CEL (optionally dotted) identifiers.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Environment is a CEL environment declaring one variable per registry key.
type Environment struct {
	env         *cel.Env
	logger      *slog.Logger
	vars        map[string]ruleengine.KeyID
	programs    *cache.MemoryCache[*Compiled]
	fingerprint string
}

// Compiled is a checked CEL program together with facts gathered at compile time.
type Compiled struct {
	Expression string
	program    cel.Program
	output     *cel.Type
	refs       int
}

// NewEnvironment declares every key of registry whose name is a valid CEL
// identifier. programs may be nil to disable caching.
func NewEnvironment(logger *slog.Logger, registry *ruleengine.Registry, programs *cache.MemoryCache[*Compiled]) (*Environment, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		return nil, errors.New("expr: registry cannot be nil")
	}

	vars := make(map[string]ruleengine.KeyID, registry.Len())
	opts := make([]cel.EnvOption, 0, registry.Len())
	sig := make([]string, 0, registry.Len())
	for _, id := range registry.Keys() {
		if !identifier.MatchString(id.Name()) {
			logger.Warn("key is not addressable from expressions", slog.String("key", id.Name()))
			continue
		}
		vars[id.Name()] = id
		opts = append(opts, cel.Variable(id.Name(), celType(id.Type())))
		sig = append(sig, id.Name()+":"+id.Type().String())
	}

	celMutex.Lock()
	env, err := cel.NewEnv(opts...)
	celMutex.Unlock()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Environment{
		env:         env,
		logger:      logger,
		vars:        vars,
		programs:    programs,
		fingerprint: fingerprint(sig),
	}, nil
}

// Fingerprint identifies the declared variables. Environments with equal
// fingerprints compile expressions identically.
func (e *Environment) Fingerprint() string { return e.fingerprint }

// Compile checks expression and builds its program, consulting the program cache.
func (e *Environment) Compile(expression string) (*Compiled, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrCompile)
	}
	if e.programs == nil {
		return e.compile(expression)
	}
	return e.programs.GetOrCompute(e.fingerprint+"\x00"+expression, func() (*Compiled, error) {
		return e.compile(expression)
	})
}

func (e *Environment) compile(expression string) (*Compiled, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrCompile, expression, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w %q: create program: %w", ErrCompile, expression, err)
	}

	return &Compiled{
		Expression: expression,
		program:    program,
		output:     ast.OutputType(),
		refs:       e.countReferences(ast),
	}, nil
}

// countReferences returns the number of distinct keys expression reads.
func (e *Environment) countReferences(ast *cel.Ast) int {
	checked, err := cel.AstToCheckedExpr(ast)
	if err != nil {
		return 1
	}
	seen := make(map[string]struct{})
	for _, ref := range checked.GetReferenceMap() {
		if _, ok := e.vars[ref.GetName()]; ok {
			seen[ref.GetName()] = struct{}{}
		}
	}
	return len(seen)
}

// eval runs compiled against c. A recursion error raised while reading a
// variable is re-raised after evaluation, since cel-go turns panics into errors.
func (e *Environment) eval(compiled *Compiled, c *ruleengine.Context) (ref.Val, error) {
	act := &activation{c: c, vars: e.vars}
	out, _, err := compiled.program.Eval(act)
	if act.abort != nil {
		panic(act.abort)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// celType maps Go key types to CEL declarations. Anything else is dynamic.
func celType(t reflect.Type) *cel.Type {
	switch t.Kind() {
	case reflect.String:
		return cel.StringType
	case reflect.Bool:
		return cel.BoolType
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cel.IntType
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cel.UintType
	case reflect.Float32, reflect.Float64:
		return cel.DoubleType
	default:
		return cel.DynType
	}
}

func fingerprint(parts []string) string {
	slices.Sort(parts)
	h := murmur3.New64()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
