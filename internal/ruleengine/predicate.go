package ruleengine

import (
	"cmp"
	"fmt"
	"strings"
)

// Predicate is a boolean test over a Context.
//
// Evaluate must be free of side effects; it may be called repeatedly and in any
// order. Specificity is a structural score used to break priority ties: leaves
// count 1, constants 0, And/Or sum their children and Not passes its child's
// score through. It never evaluates the predicate.
//
// The set of predicate kinds is closed. Func and FuncWithSpecificity are the
// extension points for arbitrary tests.
type Predicate interface {
	Evaluate(c *Context) bool
	Specificity() int
	String() string

	predicate()
}

// boolPredicate is the constant predicate. It ranks below every other kind.
type boolPredicate struct {
	value bool
}

var (
	truePredicate  = boolPredicate{value: true}
	falsePredicate = boolPredicate{value: false}
)

// True matches every context. Rules without a condition use it.
func True() Predicate { return truePredicate }

// False never matches.
func False() Predicate { return falsePredicate }

func (p boolPredicate) Evaluate(*Context) bool { return p.value }
func (p boolPredicate) Specificity() int       { return 0 }
func (p boolPredicate) predicate()             {}

func (p boolPredicate) String() string {
	if p.value {
		return "*true*"
	}
	return "*false*"
}

// comparePredicate is a leaf comparison of a key against a literal or another key.
type comparePredicate struct {
	desc string
	test func(c *Context) bool
}

func (p *comparePredicate) Evaluate(c *Context) bool { return p.test(c) }
func (p *comparePredicate) Specificity() int         { return 1 }
func (p *comparePredicate) String() string           { return p.desc }
func (p *comparePredicate) predicate()               {}

// Equal matches when the key resolves to value.
func Equal[T comparable](key Key[T], value T) Predicate {
	return &comparePredicate{
		desc: fmt.Sprintf("%s == %v", key.Name(), value),
		test: func(c *Context) bool { return Get(c, key) == value },
	}
}

// NotEqual matches when the key does not resolve to value.
func NotEqual[T comparable](key Key[T], value T) Predicate {
	return &comparePredicate{
		desc: fmt.Sprintf("%s != %v", key.Name(), value),
		test: func(c *Context) bool { return Get(c, key) != value },
	}
}

// Compare applies an ordered comparison between the key's value and value.
func Compare[T cmp.Ordered](key Key[T], op Operator, value T) Predicate {
	return &comparePredicate{
		desc: fmt.Sprintf("%s %s %v", key.Name(), op, value),
		test: func(c *Context) bool { return compareOrdered(op, Get(c, key), value) },
	}
}

// EqualKeys matches when both keys resolve to equal values in the same context.
func EqualKeys[T comparable](lhs, rhs Key[T]) Predicate {
	return &comparePredicate{
		desc: fmt.Sprintf("%s == %s", lhs.Name(), rhs.Name()),
		test: func(c *Context) bool { return Get(c, lhs) == Get(c, rhs) },
	}
}

// CompareKeys applies an ordered comparison between the values of two keys.
func CompareKeys[T cmp.Ordered](lhs Key[T], op Operator, rhs Key[T]) Predicate {
	return &comparePredicate{
		desc: fmt.Sprintf("%s %s %s", lhs.Name(), op, rhs.Name()),
		test: func(c *Context) bool { return compareOrdered(op, Get(c, lhs), Get(c, rhs)) },
	}
}

// Same matches when both keys resolve to the same object, not merely equal ones.
func Same[T any](lhs, rhs Key[*T]) Predicate {
	return &comparePredicate{
		desc: fmt.Sprintf("%s === %s", lhs.Name(), rhs.Name()),
		test: func(c *Context) bool { return Get(c, lhs) == Get(c, rhs) },
	}
}

// NotSame matches when the keys resolve to different objects.
func NotSame[T any](lhs, rhs Key[*T]) Predicate {
	return &comparePredicate{
		desc: fmt.Sprintf("%s !== %s", lhs.Name(), rhs.Name()),
		test: func(c *Context) bool { return Get(c, lhs) != Get(c, rhs) },
	}
}

// notPredicate negates its child.
type notPredicate struct {
	child Predicate
}

// Not negates p. The specificity of p is kept unchanged.
func Not(p Predicate) Predicate {
	if p == nil {
		panic("ruleengine: Not requires a predicate")
	}
	return &notPredicate{child: p}
}

func (p *notPredicate) Evaluate(c *Context) bool { return !p.child.Evaluate(c) }
func (p *notPredicate) Specificity() int         { return p.child.Specificity() }
func (p *notPredicate) String() string           { return "!(" + p.child.String() + ")" }
func (p *notPredicate) predicate()               {}

// andPredicate matches when all children match, stopping at the first miss.
type andPredicate struct {
	children []Predicate
}

// And combines predicates conjunctively. With no arguments it behaves like True
// but keeps the specificity of an empty sum.
func And(ps ...Predicate) Predicate {
	return &andPredicate{children: compact(ps)}
}

func (p *andPredicate) Evaluate(c *Context) bool {
	for _, child := range p.children {
		if !child.Evaluate(c) {
			return false
		}
	}
	return true
}

func (p *andPredicate) Specificity() int { return sumSpecificity(p.children) }
func (p *andPredicate) String() string   { return join(p.children, " && ") }
func (p *andPredicate) predicate()       {}

// orPredicate matches when any child matches, stopping at the first hit.
type orPredicate struct {
	children []Predicate
}

// Or combines predicates disjunctively. With no arguments it never matches.
func Or(ps ...Predicate) Predicate {
	return &orPredicate{children: compact(ps)}
}

func (p *orPredicate) Evaluate(c *Context) bool {
	for _, child := range p.children {
		if child.Evaluate(c) {
			return true
		}
	}
	return false
}

func (p *orPredicate) Specificity() int { return sumSpecificity(p.children) }
func (p *orPredicate) String() string   { return join(p.children, " || ") }
func (p *orPredicate) predicate()       {}

// closurePredicate wraps arbitrary user logic.
type closurePredicate struct {
	desc        string
	specificity int
	fn          func(c *Context) bool
}

// Func wraps fn as a predicate with specificity 1.
func Func(fn func(c *Context) bool) Predicate {
	return FuncWithSpecificity(1, "<func>", fn)
}

// FuncWithSpecificity wraps fn with an explicit specificity and description.
// Negative specificities are clamped to zero.
func FuncWithSpecificity(specificity int, desc string, fn func(c *Context) bool) Predicate {
	if fn == nil {
		panic("ruleengine: predicate function cannot be nil")
	}
	return &closurePredicate{desc: desc, specificity: max(specificity, 0), fn: fn}
}

func (p *closurePredicate) Evaluate(c *Context) bool { return p.fn(c) }
func (p *closurePredicate) Specificity() int         { return p.specificity }
func (p *closurePredicate) String() string           { return p.desc }
func (p *closurePredicate) predicate()               {}

func compact(ps []Predicate) []Predicate {
	out := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func sumSpecificity(ps []Predicate) int {
	total := 0
	for _, p := range ps {
		total += p.Specificity()
	}
	return total
}

func join(ps []Predicate, sep string) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
