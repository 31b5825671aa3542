package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_OverridePrecedence(t *testing.T) {
	t.Parallel()

	k := newTodoKeys()
	model := NewModel(NewRuleAt(True(), Assign(k.title, "From rule"), PriorityImportant))
	c := NewContext(model)

	require.Equal(t, "From rule", Get(c, k.title))

	Set(c, k.title, "Explicit")
	assert.Equal(t, "Explicit", Get(c, k.title))
	assert.True(t, c.HasOverride(k.title.ID()))

	c.Unset(k.title.ID())
	assert.Equal(t, "From rule", Get(c, k.title))
	assert.False(t, c.HasOverride(k.title.ID()))
}

func TestContext_GetDoesNotCache(t *testing.T) {
	t.Parallel()

	k := newTodoKeys()
	calls := 0
	model := NewModel(Always(AssignFunc(k.title, func(*Context) string {
		calls++
		return "computed"
	})))
	c := NewContext(model)

	_ = Get(c, k.title)
	_ = Get(c, k.title)

	assert.Equal(t, 2, calls, "Every lookup evaluates the rules again")
	assert.Empty(t, c.Overrides(), "Lookups never write overrides")
}

func TestFind(t *testing.T) {
	t.Parallel()

	k := newTodoKeys()
	model := NewModel(NewRule(Equal(k.verb, "edit"), Assign(k.title, "Edit")))
	c := NewContext(model)

	_, ok := Find(c, k.title)
	assert.False(t, ok, "The default is not consulted")

	Set(c, k.verb, "edit")
	v, ok := Find(c, k.title)
	assert.True(t, ok)
	assert.Equal(t, "Edit", v)

	Set(c, k.color, "blue")
	v, ok = Find(c, k.color)
	assert.True(t, ok)
	assert.Equal(t, "blue", v)
}

func TestContext_SetValue(t *testing.T) {
	t.Parallel()

	k := newTodoKeys()
	c := NewContext(nil)

	require.NoError(t, c.SetValue(k.verb.ID(), "edit"))
	assert.Equal(t, "edit", Get(c, k.verb))

	err := c.SetValue(k.verb.ID(), 3)
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, `key "verb": expected string, got int`, mismatch.Error())
	assert.Equal(t, "edit", Get(c, k.verb), "A rejected value leaves the override untouched")

	assert.ErrorIs(t, c.SetValue(KeyID{}, "x"), ErrInvalidKey)
}

func TestContext_Clone(t *testing.T) {
	t.Parallel()

	k := newTodoKeys()
	model := NewModel(NewRule(Equal(k.verb, "edit"), Assign(k.title, "Edit")))
	original := NewContext(model)
	Set(original, k.verb, "edit")

	clone := original.Clone()
	Set(clone, k.verb, "view")
	Set(clone, k.color, "red")
	original.Unset(k.title.ID())

	assert.Equal(t, "Edit", Get(original, k.title))
	assert.Equal(t, "Default", Get(clone, k.title))
	assert.False(t, original.HasOverride(k.color.ID()))
	assert.Same(t, original.Model(), clone.Model())
	assert.Same(t, original.Engine(), clone.Engine())
}

func TestContext_Trace(t *testing.T) {
	t.Parallel()

	k := newTodoKeys()
	model := NewNamedModel("main", NewRule(Equal(k.verb, "edit"), Assign(k.title, "Edit")))
	c := NewContext(model)

	tests := []struct {
		name       string
		setup      func(c *Context)
		wantValue  any
		wantSource Source
		wantModel  string
	}{
		{
			name:       "Default",
			setup:      func(*Context) {},
			wantValue:  "Default",
			wantSource: SourceDefault,
		},
		{
			name:       "Rule",
			setup:      func(c *Context) { Set(c, k.verb, "edit") },
			wantValue:  "Edit",
			wantSource: SourceRule,
			wantModel:  "main",
		},
		{
			name:       "Override",
			setup:      func(c *Context) { Set(c, k.title, "Mine") },
			wantValue:  "Mine",
			wantSource: SourceOverride,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scoped := c.Clone()
			tt.setup(scoped)

			res := scoped.Trace(k.title.ID())

			assert.Equal(t, tt.wantValue, res.Value)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, tt.wantModel, res.Model)
			assert.NoError(t, res.Err)
		})
	}
}

func TestContext_String(t *testing.T) {
	t.Parallel()

	k := newTodoKeys()
	c := NewContext(NewNamedModel("main"))
	Set(c, k.verb, "edit")
	Set(c, k.color, "red")

	assert.Equal(t, "<Context <Model main: 0 rules> {color=red, verb=edit}>", c.String())
	assert.Equal(t, "override", SourceOverride.String())
	assert.Equal(t, "none", SourceNone.String())
}

func TestContext_InvalidKey(t *testing.T) {
	t.Parallel()

	assert.PanicsWithError(t, ErrInvalidKey.Error(), func() {
		NewContext(nil).Value(KeyID{})
	})
}
