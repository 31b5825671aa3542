package ruleengine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Model is a keyed set of rules with an optional chain of fallback models.
//
// A Model is safe for concurrent use. Per-key rule lists are sorted lazily on
// the first resolution after a change; a sorted list is replaced, never edited
// in place, so slices handed to derived models stay valid.
type Model struct {
	name string

	mu      sync.RWMutex
	rules   map[KeyID][]*Rule
	dirty   map[KeyID]bool
	parents []*Model
}

// NewModel returns an unnamed model holding rules.
func NewModel(rules ...*Rule) *Model {
	return NewNamedModel("", rules...)
}

// NewNamedModel returns a model holding rules. The name shows up in traces.
func NewNamedModel(name string, rules ...*Rule) *Model {
	m := &Model{
		name:  name,
		rules: make(map[KeyID][]*Rule),
		dirty: make(map[KeyID]bool),
	}
	for _, r := range rules {
		m.AddRule(r)
	}
	return m
}

// Name returns the model's name, which may be empty.
func (m *Model) Name() string { return m.name }

// AddRule appends r to the rules of its candidate key. It mutates m.
func (m *Model) AddRule(r *Rule) *Model {
	if r == nil {
		return m
	}
	id := r.CandidateKey()

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.rules[id]
	next := make([]*Rule, len(list), len(list)+1)
	copy(next, list)
	m.rules[id] = append(next, r)
	m.dirty[id] = true
	return m
}

// Fallback returns a new model with m's rules whose fallback chain is other
// followed by m's own chain. Neither m nor other is modified.
func (m *Model) Fallback(other *Model) *Model {
	m.mu.RLock()
	out := &Model{
		name:    m.name,
		rules:   maps.Clone(m.rules),
		dirty:   maps.Clone(m.dirty),
		parents: make([]*Model, 0, len(m.parents)+1),
	}
	if other != nil {
		out.parents = append(out.parents, other)
	}
	out.parents = append(out.parents, m.parents...)
	m.mu.RUnlock()
	return out
}

// Parents returns the fallback chain in lookup order.
func (m *Model) Parents() []*Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.parents)
}

// Resolve fires the first matching rule for id, consulting the fallback chain
// when nothing in m matches. The boolean is false when no model produced a value.
func (m *Model) Resolve(id KeyID, c *Context) (any, bool) {
	res := m.resolve(id, c)
	return res.value, res.found
}

// modelResult carries the outcome of a lookup through a model chain.
type modelResult struct {
	value    any
	found    bool
	model    string
	rule     *Rule
	mismatch error
}

func (m *Model) resolve(id KeyID, c *Context) modelResult {
	var mismatch error

	for _, r := range m.sorted(id) {
		if !r.predicate.Evaluate(c) {
			continue
		}
		// exactly one rule fires per model; an action without a value hands
		// the lookup to the fallback chain
		v, ok := r.action.Fire(c)
		if !ok {
			break
		}
		if !id.accepts(v) {
			err := id.mismatch(v)
			c.logger().Warn("rule produced a value of the wrong type",
				"key", id.Name(),
				"model", m.name,
				"rule", r.String(),
				"error", err,
			)
			mismatch = err
			break
		}
		return modelResult{value: v, found: true, model: m.name, rule: r}
	}

	for _, p := range m.Parents() {
		res := p.resolve(id, c)
		if res.mismatch == nil {
			res.mismatch = mismatch
		}
		if res.found {
			return res
		}
		mismatch = res.mismatch
	}
	return modelResult{mismatch: mismatch}
}

// sorted returns the ranked rules for id, sorting them first if needed.
func (m *Model) sorted(id KeyID) []*Rule {
	m.mu.RLock()
	list, dirty := m.rules[id], m.dirty[id]
	m.mu.RUnlock()
	if !dirty {
		return list
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	list = m.rules[id]
	if m.dirty[id] {
		list = slices.Clone(list)
		slices.SortStableFunc(list, compareRules)
		m.rules[id] = list
		delete(m.dirty, id)
	}
	return list
}

// Rules returns the rules m holds for id, ranked. Fallback models are not included.
func (m *Model) Rules(id KeyID) []*Rule {
	return slices.Clone(m.sorted(id))
}

// HasRulesFor reports whether m or any model in its chain has a rule for id.
func (m *Model) HasRulesFor(id KeyID) bool {
	m.mu.RLock()
	n := len(m.rules[id])
	m.mu.RUnlock()
	if n > 0 {
		return true
	}
	for _, p := range m.Parents() {
		if p.HasRulesFor(id) {
			return true
		}
	}
	return false
}

// Keys returns the keys m has rules for, sorted by name.
func (m *Model) Keys() []KeyID {
	m.mu.RLock()
	ids := slices.Collect(maps.Keys(m.rules))
	m.mu.RUnlock()

	slices.SortFunc(ids, func(a, b KeyID) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return ids
}

// Len returns the number of rules held by m itself.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, list := range m.rules {
		n += len(list)
	}
	return n
}

func (m *Model) String() string {
	name := m.name
	if name == "" {
		name = "anonymous"
	}
	parents := m.Parents()
	if len(parents) == 0 {
		return fmt.Sprintf("<Model %s: %d rules>", name, m.Len())
	}
	return fmt.Sprintf("<Model %s: %d rules, %d fallbacks>", name, m.Len(), len(parents))
}
