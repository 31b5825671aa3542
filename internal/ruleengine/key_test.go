package ruleengine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Identity(t *testing.T) {
	t.Parallel()

	a := NewKey("title", "x")
	b := NewKey("title", "x")

	assert.NotEqual(t, a.ID(), b.ID(), "Separately declared keys never share an identity")
	assert.Equal(t, a.ID(), a.ID())
	assert.Equal(t, "title", a.Name())
	assert.Equal(t, reflect.TypeFor[string](), a.ID().Type())
	assert.Equal(t, "title(string)", a.String())

	set := map[KeyID]int{a.ID(): 1, b.ID(): 2}
	assert.Len(t, set, 2)
}

func TestKey_ZeroValue(t *testing.T) {
	t.Parallel()

	var id KeyID
	assert.True(t, id.IsZero())
	assert.Equal(t, "", id.Name())
	assert.Nil(t, id.Type())
	assert.Equal(t, "<nil key>", id.String())
}

func TestNewKeyFunc_Validation(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewKey("", 1) })
	assert.Panics(t, func() { NewKeyFunc[int]("n", nil) })
}

func TestNewKeyFunc_ContextAwareDefault(t *testing.T) {
	t.Parallel()

	first := NewKey("first", "Ada")
	greeting := NewKeyFunc("greeting", func(c *Context) string {
		return "Hello " + Get(c, first)
	})

	c := NewContext(nil)
	assert.Equal(t, "Hello Ada", Get(c, greeting))

	Set(c, first, "Grace")
	assert.Equal(t, "Hello Grace", Get(c, greeting))
}

func TestNewDynamicKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		keyName string
		typ     reflect.Type
		wantErr bool
	}{
		{name: "Should create a typed identity", keyName: "limit", typ: reflect.TypeFor[int64]()},
		{name: "Should reject an empty name", keyName: "", typ: reflect.TypeFor[int64](), wantErr: true},
		{name: "Should reject a nil type", keyName: "limit", typ: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewDynamicKey(tt.keyName, tt.typ, nil)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				assert.True(t, id.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, id.Type())
			assert.Equal(t, int64(0), NewContext(nil).Value(id), "Missing defaults are the zero value")
		})
	}
}

func TestTyped(t *testing.T) {
	t.Parallel()

	id, err := NewDynamicKey("enabled", reflect.TypeFor[bool](), func(*Context) any { return true })
	require.NoError(t, err)

	t.Run("Should recover a typed handle", func(t *testing.T) {
		k, err := Typed[bool](id)
		require.NoError(t, err)
		assert.True(t, Get(NewContext(nil), k))
	})

	t.Run("Should reject a different type", func(t *testing.T) {
		_, err := Typed[string](id)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("Should reject the zero identity", func(t *testing.T) {
		_, err := Typed[bool](KeyID{})
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestKeyID_Accepts(t *testing.T) {
	t.Parallel()

	type shape interface{ Area() float64 }

	tests := []struct {
		name  string
		id    KeyID
		value any
		want  bool
	}{
		{name: "Exact type", id: NewKey("s", "").ID(), value: "x", want: true},
		{name: "Different type", id: NewKey("s", "").ID(), value: 1, want: false},
		{name: "Named type is not its underlying type", id: NewKey("p", todoHigh).ID(), value: 2, want: false},
		{name: "Nil for a pointer key", id: NewKey[*int]("p", nil).ID(), value: nil, want: true},
		{name: "Nil for a value key", id: NewKey("n", 0).ID(), value: nil, want: false},
		{name: "Nil for an interface key", id: NewKey[shape]("shape", nil).ID(), value: nil, want: true},
		{name: "Non implementing value for an interface key", id: NewKey[shape]("shape", nil).ID(), value: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.accepts(tt.value))
		})
	}
}
