package expr

import (
	"github.com/google/cel-go/interpreter"

	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// activation resolves CEL variables by looking the keys up in a Context.
type activation struct {
	c     *ruleengine.Context
	vars  map[string]ruleengine.KeyID
	abort *ruleengine.RecursionError
}

func (a *activation) ResolveName(name string) (v any, found bool) {
	id, ok := a.vars[name]
	if !ok || a.abort != nil {
		return nil, false
	}

	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(*ruleengine.RecursionError)
			if !ok {
				panic(r)
			}
			a.abort = rerr
			v, found = nil, false
		}
	}()
	return a.c.Value(id), true
}

func (a *activation) Parent() interpreter.Activation { return nil }
