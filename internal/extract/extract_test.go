package extract

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/frontmatter"
	"github.com/starford/fmschema/internal/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func records(t *testing.T, data ...map[string]any) []frontmatter.Record {
	t.Helper()
	out := make([]frontmatter.Record, len(data))
	for i, d := range data {
		r, err := frontmatter.New(d)
		require.NoError(t, err)
		out[i] = r
	}
	return out
}

func partSchema(extraItemProps map[string]any) *schema.Schema {
	items := map[string]any{"type": "object"}
	if extraItemProps != nil {
		items["properties"] = extraItemProps
	}
	return schema.FromMap(map[string]any{
		"properties": map[string]any{
			"commands": map[string]any{
				"type":               "array",
				"x-frontmatter-part": true,
				"items":              items,
			},
		},
	})
}

func TestProcess_NoDirective(t *testing.T) {
	docs := records(t, map[string]any{"a": 1})
	s := schema.FromMap(map[string]any{"type": "object"})

	res := New(quietLogger()).Process(docs, s)
	assert.Equal(t, docs, res.Records)
	assert.Empty(t, res.PartPath)
}

func TestProcess_DirectiveWithoutPath(t *testing.T) {
	docs := records(t, map[string]any{"a": 1})
	s := schema.FromMap(map[string]any{"x-frontmatter-part": true})

	res := New(quietLogger()).Process(docs, s)
	assert.Equal(t, docs, res.Records)
}

func TestProcess_WholeFrontmatterBecomesItem(t *testing.T) {
	docs := records(t,
		map[string]any{"c1": "git", "c2": "commit", "commands": "not-a-sub-path"},
		map[string]any{"c1": "spec", "c2": "create"},
	)
	res := New(quietLogger()).Process(docs, partSchema(nil))

	require.Len(t, res.Records, 2)
	assert.Equal(t, "commands", res.PartPath)
	assert.Equal(t, docs[0].Data(), res.Records[0].Data())
	assert.False(t, res.FellBack)
}

func TestProcess_SkipsEmptyDocuments(t *testing.T) {
	docs := records(t,
		map[string]any{"c1": "git"},
		map[string]any{},
		map[string]any{"c1": "spec"},
	)
	res := New(quietLogger()).Process(docs, partSchema(nil))

	require.Len(t, res.Records, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 1, res.Skipped[0].Index)
	assert.ErrorIs(t, res.Skipped[0], apperr.ErrEmptyInput)
}

func TestProcess_FallsBackWhenNoItems(t *testing.T) {
	docs := records(t, map[string]any{}, map[string]any{})
	res := New(quietLogger()).Process(docs, partSchema(nil))

	assert.True(t, res.FellBack)
	assert.Len(t, res.Records, 2)
	assert.Len(t, res.Skipped, 2)
}

func TestProcess_FlattenArrays(t *testing.T) {
	s := partSchema(map[string]any{
		"traceability": map[string]any{"type": "array", "x-flatten-arrays": "traceability"},
	})
	docs := records(t,
		map[string]any{"id": 1, "traceability": []any{"a", []any{"b", []any{"c"}}}},
		map[string]any{"id": 2, "traceability": "single"},
		map[string]any{"id": 3},
	)
	res := New(quietLogger()).Process(docs, s)
	require.Len(t, res.Records, 3)

	v, err := res.Records[0].Get("traceability")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, v)

	v, err = res.Records[1].Get("traceability")
	require.NoError(t, err)
	assert.Equal(t, []any{"single"}, v)

	assert.False(t, res.Records[2].Has("traceability"))
}

func TestBuildStructure(t *testing.T) {
	docs := records(t, map[string]any{"a": 1}, map[string]any{"a": 2})
	agg, err := BuildStructure(docs, "tools.commands")
	require.NoError(t, err)

	v, err := agg.Get("tools.commands")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"a": 1}, map[string]any{"a": 2}}, v)

	_, err = BuildStructure(docs, "")
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)
}

func TestFlattenValue(t *testing.T) {
	assert.Equal(t, []any{}, FlattenValue(nil))
	assert.Equal(t, []any{1}, FlattenValue(1))
	assert.Equal(t, []any{1, 2, 3}, FlattenValue([]any{1, []any{2, nil, []any{3}}}))
}
