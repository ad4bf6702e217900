package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/fmschema/internal/apperr"
)

func TestNew_RejectsNil(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
}

func TestNew_EmptyIsValid(t *testing.T) {
	r, err := New(map[string]any{})
	require.NoError(t, err)
	assert.True(t, r.IsEmpty())
	assert.Equal(t, 0, r.Len())
}

func TestNew_CopiesInput(t *testing.T) {
	src := map[string]any{"tags": []any{"a"}, "meta": map[string]any{"k": "v"}}
	r, err := New(src)
	require.NoError(t, err)

	src["tags"].([]any)[0] = "mutated"
	src["meta"].(map[string]any)["k"] = "mutated"

	v, err := r.Get("meta.k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, []any{"a"}, r.Data()["tags"])
}

func TestData_ReturnsCopy(t *testing.T) {
	r, _ := New(map[string]any{"a": map[string]any{"b": 1}})
	d := r.Data()
	d["a"].(map[string]any)["b"] = 2

	v, _ := r.Get("a.b")
	assert.Equal(t, 1, v)
}

func TestFromValue(t *testing.T) {
	r, err := FromValue(map[any]any{"a": 1, 2: "two"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "a"}, r.Keys())

	_, err = FromValue([]any{1})
	assert.ErrorIs(t, err, apperr.ErrTypeMismatch)

	_, err = FromValue(nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
}

func TestWith_DoesNotMutate(t *testing.T) {
	r, _ := New(map[string]any{"a": 1})
	r2, err := r.With("b.c", "x")
	require.NoError(t, err)

	assert.False(t, r.Has("b"))
	assert.True(t, r2.Has("b.c"))
	assert.True(t, r2.Has("a"))
}

func TestMerge_LastWriteWins(t *testing.T) {
	a, _ := New(map[string]any{"x": 1})
	b, _ := New(map[string]any{"x": 2, "y": 3})

	merged := a.Merge(b)
	assert.Equal(t, map[string]any{"x": 2, "y": 3}, merged.Data())
	assert.Equal(t, map[string]any{"x": 1}, a.Data())
}

func TestEqual(t *testing.T) {
	a, _ := New(map[string]any{"x": []any{1, 2}})
	b, _ := New(map[string]any{"x": []any{1, 2}})
	c, _ := New(map[string]any{"x": []any{2, 1}})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Record{}.Equal(Empty()))
}

func TestBuilder_BuildResets(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Set("a.b", 1))
	b.Merge(map[string]any{"c": []string{"x"}})

	r, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}, "c": []any{"x"}}, r.Data())

	again, _ := b.Build()
	assert.True(t, again.IsEmpty())
}

func TestBuilderFrom_IsolatedFromSource(t *testing.T) {
	r, _ := New(map[string]any{"a": map[string]any{"b": 1}})
	b := BuilderFrom(r)
	require.NoError(t, b.Set("a.b", 2))

	v, _ := r.Get("a.b")
	assert.Equal(t, 1, v)
}
