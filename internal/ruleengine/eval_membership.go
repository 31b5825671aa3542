package ruleengine

import (
	"fmt"
	"strings"
)

// membershipPredicate matches when a key's value is one of a fixed set.
// The set is built once so each evaluation is a single map lookup.
type membershipPredicate[T comparable] struct {
	key    Key[T]
	values map[T]struct{}
	desc   string
}

// In matches when the key resolves to any of values. An empty list never matches.
func In[T comparable](key Key[T], values ...T) Predicate {
	set := make(map[T]struct{}, len(values))
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := set[v]; dup {
			continue
		}
		set[v] = struct{}{}
		parts = append(parts, fmt.Sprint(v))
	}
	return &membershipPredicate[T]{
		key:    key,
		values: set,
		desc:   fmt.Sprintf("%s in [%s]", key.Name(), strings.Join(parts, ", ")),
	}
}

func (p *membershipPredicate[T]) Evaluate(c *Context) bool {
	if len(p.values) == 0 {
		return false
	}
	_, ok := p.values[Get(c, p.key)]
	return ok
}

func (p *membershipPredicate[T]) Specificity() int { return 1 }
func (p *membershipPredicate[T]) String() string   { return p.desc }
func (p *membershipPredicate[T]) predicate()       {}
