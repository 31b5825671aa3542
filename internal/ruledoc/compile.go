package ruledoc

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"gopkg.in/yaml.v3"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/expr"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// MaxMatchListSize limits the number of alternatives in a single match entry.
// Larger sets belong in a rollout or in a key computed upstream.
const MaxMatchListSize = 10_000

var (
	// ErrUnknownModel indicates a fallback naming a model the document lacks.
	ErrUnknownModel = errors.New("unknown model")

	// ErrFallbackCycle indicates models that fall back on each other.
	ErrFallbackCycle = errors.New("fallback cycle")
)

// Options tune compilation. The zero value is usable.
type Options struct {
	Logger *slog.Logger

	// Programs memoises compiled expressions across bundles.
	Programs *cache.MemoryCache[*expr.Compiled]
}

// Bundle is an immutable, compiled document.
type Bundle struct {
	Revision    string
	LoadedAt    time.Time
	Fingerprint string
	Registry    *ruleengine.Registry
	Models      map[string]*ruleengine.Model
	Rules       int
}

// Model returns the compiled model called name.
func (b *Bundle) Model(name string) (*ruleengine.Model, bool) {
	m, ok := b.Models[name]
	return m, ok
}

// ModelNames returns the model names in lexical order.
func (b *Bundle) ModelNames() []string {
	return slices.Sorted(maps.Keys(b.Models))
}

// Fingerprint identifies the raw bytes of a document.
func Fingerprint(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Load parses and compiles data in one step.
func Load(data []byte, opts Options) (*Bundle, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	b, err := Compile(doc, opts)
	if err != nil {
		return nil, err
	}
	b.Fingerprint = Fingerprint(data)
	return b, nil
}

// Compile builds the registry and every model of doc.
func Compile(doc *Document, opts Options) (*Bundle, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &compiler{
		registry: ruleengine.NewRegistry(),
		specs:    make(map[string]*ModelSpec, len(doc.Models)),
		built:    make(map[string]*ruleengine.Model, len(doc.Models)),
	}

	pending, err := c.declareKeys(doc.Keys)
	if err != nil {
		return nil, err
	}

	c.env, err = expr.NewEnvironment(opts.Logger, c.registry, opts.Programs)
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		fn, err := c.env.Default(p.id.Type(), p.expression)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q default: %w", ErrInvalidDocument, p.id.Name(), err)
		}
		p.holder.fn = fn
	}

	for i := range doc.Models {
		c.specs[doc.Models[i].Name] = &doc.Models[i]
	}
	for _, m := range doc.Models {
		if _, err := c.model(m.Name, nil); err != nil {
			return nil, err
		}
	}

	return &Bundle{
		Revision: uuid.NewString(),
		LoadedAt: time.Now(),
		Registry: c.registry,
		Models:   c.built,
		Rules:    c.rules,
	}, nil
}

type compiler struct {
	registry *ruleengine.Registry
	env      *expr.Environment
	specs    map[string]*ModelSpec
	built    map[string]*ruleengine.Model
	rules    int
}

// lazyDefault lets expression defaults be compiled after every key exists.
type lazyDefault struct {
	fn func(*ruleengine.Context) any
}

func (d *lazyDefault) eval(c *ruleengine.Context) any { return d.fn(c) }

type pendingDefault struct {
	id         ruleengine.KeyID
	expression string
	holder     *lazyDefault
}

func (c *compiler) declareKeys(specs []KeySpec) ([]pendingDefault, error) {
	var pending []pendingDefault
	for _, ks := range specs {
		typ, err := TypeOf(ks.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrInvalidDocument, ks.Name, err)
		}

		var (
			def    func(*ruleengine.Context) any
			holder *lazyDefault
		)
		switch {
		case ks.HasDefault():
			v, err := decodeNode(&ks.Default, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: key %q default: %w", ErrInvalidDocument, ks.Name, err)
			}
			def = func(*ruleengine.Context) any { return v }
		case ks.DefaultExpr != "":
			holder = &lazyDefault{}
			def = holder.eval
		}

		id, err := ruleengine.NewDynamicKey(ks.Name, typ, def)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		if err := c.registry.Register(id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		if holder != nil {
			pending = append(pending, pendingDefault{id: id, expression: ks.DefaultExpr, holder: holder})
		}
	}
	return pending, nil
}

// model compiles name after its fallback chain. path holds the models being
// compiled further up the chain.
func (c *compiler) model(name string, path []string) (*ruleengine.Model, error) {
	if m, ok := c.built[name]; ok {
		return m, nil
	}
	spec, ok := c.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrInvalidDocument, ErrUnknownModel, name)
	}
	if slices.Contains(path, name) {
		return nil, fmt.Errorf("%w: %w: %s -> %s", ErrInvalidDocument, ErrFallbackCycle, strings.Join(path, " -> "), name)
	}
	path = append(path, name)

	m := ruleengine.NewNamedModel(name)
	for i := range spec.Rules {
		r, err := c.rule(&spec.Rules[i])
		if err != nil {
			return nil, fmt.Errorf("%w: model %q rule %d: %w", ErrInvalidDocument, name, i, err)
		}
		m.AddRule(r)
		c.rules++
	}

	if spec.Fallback != "" {
		parent, err := c.model(spec.Fallback, path)
		if err != nil {
			return nil, err
		}
		m = m.Fallback(parent)
	}

	c.built[name] = m
	return m, nil
}

func (c *compiler) rule(rs *RuleSpec) (*ruleengine.Rule, error) {
	target, err := c.registry.Resolve(rs.Key)
	if err != nil {
		return nil, err
	}
	when, err := c.predicate(rs)
	if err != nil {
		return nil, err
	}
	do, err := c.action(target, rs)
	if err != nil {
		return nil, err
	}
	priority, err := ruleengine.ParsePriority(string(rs.Priority))
	if err != nil {
		return nil, err
	}
	return ruleengine.NewRuleAt(when, do, priority), nil
}

func (c *compiler) predicate(rs *RuleSpec) (ruleengine.Predicate, error) {
	var parts []ruleengine.Predicate

	if rs.When != "" {
		p, err := c.env.Predicate(rs.When)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	for _, name := range slices.Sorted(maps.Keys(rs.Match)) {
		id, err := c.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		node := rs.Match[name]
		values, err := decodeList(&node, id.Type())
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", name, err)
		}
		if len(values) > MaxMatchListSize {
			return nil, fmt.Errorf("match %q exceeds maximum size: %d > %d", name, len(values), MaxMatchListSize)
		}
		parts = append(parts, match(id, values, node.Kind == yaml.SequenceNode))
	}

	if rs.Rollout != nil {
		id, err := c.registry.Resolve(rs.Rollout.Key)
		if err != nil {
			return nil, err
		}
		subject, err := ruleengine.Typed[string](id)
		if err != nil {
			return nil, fmt.Errorf("rollout key must be a string: %w", err)
		}
		salt := rs.Rollout.Salt
		if salt == "" {
			salt = rs.Key
		}
		parts = append(parts, ruleengine.Percentage(subject, salt, rs.Rollout.Percentage))
	}

	var p ruleengine.Predicate
	switch len(parts) {
	case 0:
		p = ruleengine.True()
	case 1:
		p = parts[0]
	default:
		p = ruleengine.And(parts...)
	}

	if rs.Specificity != nil {
		p = ruleengine.FuncWithSpecificity(*rs.Specificity, p.String(), p.Evaluate)
	}
	return p, nil
}

// match compares a key against one literal, or any of several.
func match(id ruleengine.KeyID, values []any, list bool) ruleengine.Predicate {
	if !list {
		want := values[0]
		return ruleengine.FuncWithSpecificity(1, fmt.Sprintf("%s == %v", id.Name(), want), func(c *ruleengine.Context) bool {
			return c.Value(id) == want
		})
	}

	set := make(map[any]struct{}, len(values))
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := set[v]; dup {
			continue
		}
		set[v] = struct{}{}
		parts = append(parts, fmt.Sprint(v))
	}
	desc := fmt.Sprintf("%s in [%s]", id.Name(), strings.Join(parts, ", "))
	return ruleengine.FuncWithSpecificity(1, desc, func(c *ruleengine.Context) bool {
		_, ok := set[c.Value(id)]
		return ok
	})
}

func (c *compiler) action(target ruleengine.KeyID, rs *RuleSpec) (ruleengine.Action, error) {
	switch {
	case present(&rs.Value):
		v, err := decodeNode(&rs.Value, target.Type())
		if err != nil {
			return nil, err
		}
		return ruleengine.AssignValue(target, v)
	case rs.From != "":
		source, err := c.registry.Resolve(rs.From)
		if err != nil {
			return nil, err
		}
		return ruleengine.AssignKeyID(target, source)
	default:
		return c.env.Action(target, rs.Expr)
	}
}
