package ruleengine

import (
	"bytes"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type todoPriority int

const (
	todoLow todoPriority = iota
	todoNormal
	todoHigh
)

// todoKeys mirrors a small to-do application: a verb, a title and a color
// driven by the priority of the current item.
type todoKeys struct {
	verb      Key[string]
	title     Key[string]
	navTitle  Key[string]
	color     Key[string]
	priority  Key[todoPriority]
	completed Key[bool]
}

func newTodoKeys() todoKeys {
	return todoKeys{
		verb:      NewKey("verb", "view"),
		title:     NewKey("title", "Default"),
		navTitle:  NewKey("navigationBarTitle", ""),
		color:     NewKey("color", "black"),
		priority:  NewKey("todo.priority", todoNormal),
		completed: NewKey("todo.completed", false),
	}
}

func TestEngine_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("Should resolve a matching constant rule on a fresh context", func(t *testing.T) {
		t.Parallel()
		k := newTodoKeys()
		model := NewModel(NewRule(Equal(k.verb, "view"), Assign(k.title, "Hello!")))

		c := NewContext(model)

		assert.Equal(t, "Hello!", Get(c, k.title))
	})

	t.Run("Should pick the rule matching the overridden verb", func(t *testing.T) {
		t.Parallel()
		k := newTodoKeys()
		model := NewModel(
			NewRule(Equal(k.verb, "edit"), Assign(k.title, "Work it.")),
			NewRule(Equal(k.verb, "view"), Assign(k.title, "Hello!")),
		)

		c := NewContext(model)
		Set(c, k.verb, "edit")

		assert.Equal(t, "Work it.", Get(c, k.title))
	})

	t.Run("Should prefer the more specific rule at equal priority", func(t *testing.T) {
		t.Parallel()
		k := newTodoKeys()
		model := NewModel(
			NewRule(Equal(k.priority, todoHigh), Assign(k.color, "red")),
			NewRule(And(Equal(k.priority, todoHigh), Equal(k.verb, "view")), Assign(k.color, "gray")),
		)

		c := NewContext(model)
		Set(c, k.priority, todoHigh)

		assert.Equal(t, "gray", Get(c, k.color))
	})

	t.Run("Should compare two keys resolved in the same context", func(t *testing.T) {
		t.Parallel()
		k := newTodoKeys()
		model := NewModel(
			NewRule(EqualKeys(k.title, k.navTitle), Assign(k.color, "red")),
			Always(Assign(k.color, "green")),
		)

		c := NewContext(model)
		Set(c, k.title, "blub")
		Set(c, k.navTitle, "blub")

		assert.Equal(t, "red", Get(c, k.color))
	})

	t.Run("Should beat an always-true rule with a leaf at the same priority", func(t *testing.T) {
		t.Parallel()
		k := newTodoKeys()
		model := NewModel(
			NewRuleAt(True(), Assign(k.color, "red"), PriorityHigh),
			NewRuleAt(And(Equal(k.priority, todoHigh), Equal(k.verb, "view")), Assign(k.color, "gray"), PriorityHigh),
		)

		c := NewContext(model)
		Set(c, k.priority, todoHigh)

		assert.Equal(t, "gray", Get(c, k.color))
	})
}

func TestEngine_Redirects(t *testing.T) {
	t.Parallel()

	t.Run("Should follow a key redirect including overrides of the source", func(t *testing.T) {
		t.Parallel()
		k := newTodoKeys()
		model := NewModel(
			Always(MustAssignKey(k.navTitle, k.title)),
			NewRule(Equal(k.verb, "view"), Assign(k.title, "Hello!")),
		)
		c := NewContext(model)

		assert.Equal(t, Get(c, k.title), Get(c, k.navTitle))
		assert.Equal(t, "Hello!", Get(c, k.navTitle))

		Set(c, k.title, "Overridden")
		assert.Equal(t, "Overridden", Get(c, k.navTitle))
	})

	t.Run("Should resolve nested redirects through several keys", func(t *testing.T) {
		t.Parallel()
		a := NewKey("a", "a-default")
		b := NewKey("b", "")
		d := NewKey("d", "")
		model := NewModel(
			Always(MustAssignKey(d, b)),
			Always(MustAssignKey(b, a)),
		)
		c := NewContext(model)

		assert.Equal(t, "a-default", Get(c, d))
	})

	t.Run("Should read a nested value through a custom action", func(t *testing.T) {
		t.Parallel()
		type todo struct{ Title string }
		current := NewKey[*todo]("todo", nil)
		title := NewKey("title", "")
		model := NewModel(
			NewRule(Not(Equal(current, nil)), AssignFunc(title, func(c *Context) string {
				return Get(c, current).Title
			})),
		)
		c := NewContext(model)

		assert.Equal(t, "", Get(c, title))

		Set(c, current, &todo{Title: "Buy Beer"})
		assert.Equal(t, "Buy Beer", Get(c, title))
	})
}

func TestEngine_RecursionLimit(t *testing.T) {
	t.Parallel()

	a := NewKey("a", "")
	b := NewKey("b", "")
	model := NewModel(
		Always(MustAssignKey(a, b)),
		Always(MustAssignKey(b, a)),
	)

	t.Run("Should return a recursion error from Resolve", func(t *testing.T) {
		t.Parallel()
		c := New(nil, WithMaxDepth(8)).NewContext(model)

		_, err := Resolve(c, a)

		var rerr *RecursionError
		require.ErrorAs(t, err, &rerr)
		assert.ErrorIs(t, err, ErrRecursionLimit)
		assert.Equal(t, 8, rerr.Limit)
		assert.Len(t, rerr.Chain, 9)
		assert.Equal(t, "a", rerr.Chain[0].Name())
	})

	t.Run("Should panic from Get", func(t *testing.T) {
		t.Parallel()
		c := New(nil, WithMaxDepth(4)).NewContext(model)

		assert.PanicsWithError(t, (&RecursionError{Limit: 4, Chain: []KeyID{a.ID(), b.ID(), a.ID(), b.ID(), a.ID()}}).Error(), func() {
			Get(c, a)
		})
	})

	t.Run("Should leave the context usable after the error", func(t *testing.T) {
		t.Parallel()
		c := New(nil, WithMaxDepth(4)).NewContext(model)

		_, err := Resolve(c, a)
		require.Error(t, err)

		Set(c, b, "fixed")
		got, err := Resolve(c, a)
		require.NoError(t, err)
		assert.Equal(t, "fixed", got)
	})

	t.Run("Should reject a direct self redirect at construction", func(t *testing.T) {
		t.Parallel()
		_, err := AssignKey(a, a)
		assert.ErrorIs(t, err, ErrSelfReference)
	})
}

func TestEngine_TypeMismatch(t *testing.T) {
	t.Parallel()

	// Arrange: capture logs to verify the mismatch is reported
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	count, err := NewDynamicKey("count", reflect.TypeFor[int64](), nil)
	require.NoError(t, err)

	bad := NewNamedModel("bad", Always(AssignDynamic(count, "broken", func(*Context) (any, error) {
		return "not a number", nil
	})))
	good := NewNamedModel("good", Always(AssignDynamic(count, "seven", func(*Context) (any, error) {
		return int64(7), nil
	})))

	t.Run("Should continue with the fallback chain", func(t *testing.T) {
		c := New(logger).NewContext(bad.Fallback(good))

		res := c.Trace(count)

		assert.Equal(t, int64(7), res.Value)
		assert.Equal(t, SourceRule, res.Source)
		assert.Equal(t, "good", res.Model)
		assert.ErrorIs(t, res.Err, ErrTypeMismatch)
		assert.Contains(t, buf.String(), "rule produced a value of the wrong type")
	})

	t.Run("Should degrade to the default without a fallback", func(t *testing.T) {
		c := New(logger).NewContext(bad)

		res := c.Trace(count)

		assert.Equal(t, int64(0), res.Value)
		assert.Equal(t, SourceDefault, res.Source)
		var mismatch *TypeMismatchError
		require.ErrorAs(t, res.Err, &mismatch)
		assert.Equal(t, "count", mismatch.Key.Name())
	})
}

func TestEngine_Observer(t *testing.T) {
	t.Parallel()

	// Arrange
	var (
		mu     sync.Mutex
		events []ResolveEvent
	)
	obs := ObserverFunc(func(ev ResolveEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	k := newTodoKeys()
	model := NewNamedModel("main", NewRule(Equal(k.verb, "view"), Assign(k.title, "Hello!")))
	c := New(nil, WithObserver(obs)).NewContext(model)

	// Act
	_ = Get(c, k.title)

	// Assert: verb resolves from its default inside the title lookup
	require.Len(t, events, 2)
	assert.Equal(t, k.verb.ID(), events[0].Key)
	assert.Equal(t, SourceDefault, events[0].Source)
	assert.Equal(t, 2, events[0].Depth)
	assert.Equal(t, k.title.ID(), events[1].Key)
	assert.Equal(t, SourceRule, events[1].Source)
	assert.Equal(t, "main", events[1].Model)
	assert.Equal(t, 1, events[1].Depth)
}

func TestEngine_DebugLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	k := newTodoKeys()

	c := New(logger).NewContext(nil)
	Set(c, k.verb, "edit")
	_ = Get(c, k.verb)

	assert.Contains(t, buf.String(), "resolved key")
	assert.Contains(t, buf.String(), "source=override")
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	e := New(nil)
	assert.NotNil(t, e.logger)
	assert.Equal(t, DefaultMaxDepth, e.MaxDepth())

	assert.Equal(t, 0, New(nil, WithMaxDepth(0)).MaxDepth(), "zero disables the guard")
	assert.Equal(t, DefaultMaxDepth, New(nil, WithMaxDepth(-1)).MaxDepth(), "negative values are ignored")
}
