package ruleengine

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Priority ranks rules targeting the same key. Higher wins.
type Priority int16

// Named priority bands. Any other int16 is a valid priority as well.
const (
	PriorityFallback  Priority = 0
	PriorityVeryLow   Priority = 5
	PriorityLow       Priority = 50
	PriorityNormal    Priority = 100
	PriorityHigh      Priority = 150
	PriorityVeryHigh  Priority = 200
	PriorityImportant Priority = 1000
)

var priorityNames = map[string]Priority{
	"important": PriorityImportant,
	"very high": PriorityVeryHigh,
	"high":      PriorityHigh,
	"normal":    PriorityNormal,
	"default":   PriorityNormal,
	"low":       PriorityLow,
	"very low":  PriorityVeryLow,
	"fallback":  PriorityFallback,
}

// ParsePriority accepts a band name (case-insensitive) or an integer.
// The empty string is PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriorityNormal, nil
	}
	if n, err := strconv.ParseInt(s, 10, 16); err == nil {
		return Priority(n), nil
	}
	if p, ok := priorityNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) String() string {
	switch p {
	case PriorityFallback:
		return "fallback"
	case PriorityVeryLow:
		return "very low"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very high"
	case PriorityImportant:
		return "important"
	default:
		return strconv.Itoa(int(p))
	}
}

// Rule pairs a predicate with an action at a priority. Rules are immutable.
type Rule struct {
	predicate   Predicate
	action      Action
	priority    Priority
	specificity int
}

// NewRule builds a rule at PriorityNormal. A nil predicate always matches.
func NewRule(when Predicate, do Action) *Rule {
	return NewRuleAt(when, do, PriorityNormal)
}

// NewRuleAt builds a rule at an explicit priority.
func NewRuleAt(when Predicate, do Action, priority Priority) *Rule {
	if do == nil {
		panic("ruleengine: rule requires an action")
	}
	if when == nil {
		when = True()
	}
	return &Rule{
		predicate:   when,
		action:      do,
		priority:    priority,
		specificity: when.Specificity(),
	}
}

// Always is a rule without a condition.
func Always(do Action) *Rule {
	return NewRule(True(), do)
}

// WithPriority returns a copy of r at priority p.
func (r *Rule) WithPriority(p Priority) *Rule {
	out := *r
	out.priority = p
	return &out
}

func (r *Rule) Predicate() Predicate { return r.predicate }
func (r *Rule) Action() Action       { return r.action }
func (r *Rule) Priority() Priority   { return r.priority }

// CandidateKey is the key this rule produces a value for.
func (r *Rule) CandidateKey() KeyID { return r.action.Target() }

// HasHigherPriority reports whether r outranks other: by priority first, then
// by predicate specificity. A rule never outranks itself.
func (r *Rule) HasHigherPriority(other *Rule) bool {
	if r == other {
		return false
	}
	return compareRules(r, other) < 0
}

// compareRules orders higher-ranked rules first. Equal ranks compare as 0 so a
// stable sort keeps insertion order.
func compareRules(a, b *Rule) int {
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}
	return cmp.Compare(b.specificity, a.specificity)
}

func (r *Rule) String() string {
	var sb strings.Builder
	sb.WriteString("<Rule:")
	if _, ok := r.predicate.(boolPredicate); ok {
		sb.WriteString(" " + r.predicate.String())
	} else {
		sb.WriteString(" when: " + r.predicate.String())
	}
	sb.WriteString(" do: " + r.action.String())
	if r.priority != PriorityNormal {
		sb.WriteString(" @" + r.priority.String())
	}
	sb.WriteString(">")
	return sb.String()
}
