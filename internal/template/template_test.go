package template

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/fmschema/internal/apperr"
)

func TestExtractVariables_Kinds(t *testing.T) {
	vars, err := ExtractVariables("{{name}} {{a.b.c|none}} {{flag ? yes : no}} {{title|Untitled}} {{name}}")
	require.NoError(t, err)
	require.Len(t, vars, 4)

	assert.Equal(t, SimpleVariable{Raw: "{{name}}", Name: "name"}, vars[0])
	assert.Equal(t, PathVariable{Raw: "{{a.b.c|none}}", Path: "a.b.c", Default: "none", HasDefault: true}, vars[1])
	assert.Equal(t, ConditionalVariable{Raw: "{{flag ? yes : no}}", Condition: "flag", TrueValue: "yes", FalseValue: "no"}, vars[2])
	assert.Equal(t, SimpleVariable{Raw: "{{title|Untitled}}", Name: "title", Default: "Untitled", HasDefault: true}, vars[3])
}

func TestExtractVariables_InvalidName(t *testing.T) {
	for _, tmpl := range []string{"{{1abc}}", "{{}}", "{{ has space }}", "{{a-b}}"} {
		_, err := ExtractVariables(tmpl)
		assert.ErrorIs(t, err, apperr.ErrInvalidFormat, tmpl)
	}
}

func TestExtractVariables_InvalidPath(t *testing.T) {
	_, err := ExtractVariables("{{a..b}}")
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
}

func TestParseVariable_ConditionalSplitsFirstQuestionLastColon(t *testing.T) {
	// A nested ternary in the true branch is not supported: everything
	// between the first '?' and the last ':' is taken as literal text.
	v, err := ParseVariable("{{a ? b ? c : d : e}}", "a ? b ? c : d : e")
	require.NoError(t, err)
	cv := v.(ConditionalVariable)
	assert.Equal(t, "a", cv.Condition)
	assert.Equal(t, "b ? c : d", cv.TrueValue)
	assert.Equal(t, "e", cv.FalseValue)
}

func TestParseVariable_ConditionalErrors(t *testing.T) {
	for _, c := range []string{"a : b ? c", " ? x : y", "a ? : y", "a ? x : "} {
		_, err := ParseVariable("{{"+c+"}}", c)
		assert.ErrorIs(t, err, apperr.ErrInvalidFormat, c)
	}
}

func TestResolve_AllResolved(t *testing.T) {
	data := map[string]any{
		"name":  "World",
		"count": 3,
		"ratio": 0.5,
		"meta":  map[string]any{"author": "ann"},
		"tags":  []any{"a", "b"},
	}
	res, err := Resolve("Hello {{name}} x{{count}} {{ratio}} by {{meta.author}} {{tags}} {{name}}", data, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, `Hello World x3 0.5 by ann ["a","b"] World`, res.Text)
	assert.Len(t, res.Resolved, 5)
}

func TestResolve_StrictModeFails(t *testing.T) {
	res, err := Resolve("Hello {{name}}", map[string]any{}, Options{AllowPartialResolution: false})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrProcessingFailed)
	assert.ErrorIs(t, err, apperr.ErrPropertyNotFound)

	var pe *ProcessingError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Errors, 1)
	assert.Equal(t, "{{name}}", pe.Errors[0].Variable.Placeholder())
}

func TestResolve_PartialModeLeavesPlaceholder(t *testing.T) {
	res, err := Resolve("Hello {{name}}", map[string]any{}, Options{AllowPartialResolution: true})
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, res.Status)
	assert.Equal(t, "Hello {{name}}", res.Text)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, SimpleVariable{Raw: "{{name}}", Name: "name"}, res.Unresolved[0])
}

func TestResolve_PartialModeMixed(t *testing.T) {
	res, err := Resolve("{{a}} and {{b.c}}", map[string]any{"a": "x"}, Options{AllowPartialResolution: true})
	require.NoError(t, err)
	assert.Equal(t, "x and {{b.c}}", res.Text)
	assert.Equal(t, StatusPartialSuccess, res.Status)
}

func TestResolve_Conditional(t *testing.T) {
	tmpl := "{{flag ? yes : no}}"
	cases := []struct {
		data map[string]any
		want string
	}{
		{map[string]any{"flag": true}, "yes"},
		{map[string]any{"flag": false}, "no"},
		{map[string]any{}, "no"},
		{map[string]any{"flag": 0}, "no"},
		{map[string]any{"flag": ""}, "no"},
		{map[string]any{"flag": "x"}, "yes"},
		{map[string]any{"flag": []any{}}, "yes"},
	}
	for _, c := range cases {
		res, err := Resolve(tmpl, c.data, Options{})
		require.NoError(t, err)
		assert.Equal(t, c.want, res.Text, "%v", c.data)
	}
}

func TestResolve_ConditionalKeyBeforePath(t *testing.T) {
	tmpl := "{{a.b ? yes : no}}"
	cases := []struct {
		data map[string]any
		want string
	}{
		{map[string]any{"a.b": true}, "yes"},
		{map[string]any{"a.b": false, "a": map[string]any{"b": true}}, "no"},
		{map[string]any{"a": map[string]any{"b": true}}, "yes"},
		{map[string]any{"a": "scalar"}, "no"},
	}
	for _, c := range cases {
		res, err := Resolve(tmpl, c.data, Options{})
		require.NoError(t, err)
		assert.Equal(t, c.want, res.Text, "%v", c.data)
	}
}

func TestResolve_Defaults(t *testing.T) {
	res, err := Resolve("{{missing|fallback}}", map[string]any{}, Options{UseDefaults: true})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Text)
	require.Len(t, res.Resolved, 1)
	assert.True(t, res.Resolved[0].UsedDefault)

	res, err = Resolve("{{a.b|none}}", map[string]any{"a": "scalar"}, Options{UseDefaults: true})
	require.NoError(t, err)
	assert.Equal(t, "none", res.Text)

	// Defaults are ignored unless enabled.
	_, err = Resolve("{{missing|fallback}}", map[string]any{}, Options{UseDefaults: false})
	assert.ErrorIs(t, err, apperr.ErrProcessingFailed)
}

func TestResolve_DefaultWithDotIsPathVariable(t *testing.T) {
	res, err := Resolve("{{file|index.md}}", map[string]any{}, Options{UseDefaults: true})
	require.NoError(t, err)
	assert.Equal(t, "index.md", res.Text)
}

func TestResolve_ValuesAreNotRescanned(t *testing.T) {
	res, err := Resolve("{{a}} {{b}}", map[string]any{"a": "{{b}}", "b": "B"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "{{b}} B", res.Text)
}

func TestResolve_InvalidTemplate(t *testing.T) {
	_, err := Resolve("{{9lives}}", map[string]any{}, Options{AllowPartialResolution: true})
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(math.NaN()))
	assert.False(t, Truthy(0.0))
	assert.True(t, Truthy(map[string]any{}))
	assert.True(t, Truthy(-1))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "1000000", FormatValue(1e6))
	assert.Equal(t, `{"a":1}`, FormatValue(map[string]any{"a": 1}))
}

func TestRenderDocument_TypedAndTextual(t *testing.T) {
	tmpl := map[string]any{
		"version":     "{{version}}",
		"description": "Registry v{{version}} with {{count}} commands",
		"tools": map[string]any{
			"availableConfigs": "{{tools.availableConfigs}}",
			"commands":         []any{"{@items}"},
		},
	}
	data := map[string]any{
		"version": "1.2",
		"count":   2,
		"tools": map[string]any{
			"availableConfigs": []any{"git", "spec"},
		},
	}
	items := []any{
		map[string]any{"c1": "git", "c2": "commit"},
		map[string]any{"c1": "spec", "c2": "create"},
	}
	itemTmpl := map[string]any{"name": "{{c1}}:{{c2}}", "config": "{{c1}}"}

	out, res, err := RenderDocument(tmpl, data, DocumentOptions{Items: items, ItemTemplate: itemTmpl})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)

	want := map[string]any{
		"version":     "1.2",
		"description": "Registry v1.2 with 2 commands",
		"tools": map[string]any{
			"availableConfigs": []any{"git", "spec"},
			"commands": []any{
				map[string]any{"name": "git:commit", "config": "git"},
				map[string]any{"name": "spec:create", "config": "spec"},
			},
		},
	}
	assert.Equal(t, want, out)
}

func TestRenderDocument_ItemsWithoutTemplate(t *testing.T) {
	items := []any{map[string]any{"a": 1}}
	out, _, err := RenderDocument([]any{"head", "{@items}"}, map[string]any{}, DocumentOptions{Items: items})
	require.NoError(t, err)
	assert.Equal(t, []any{"head", map[string]any{"a": 1}}, out)
}

func TestRenderDocument_StrictAndPartial(t *testing.T) {
	tmpl := map[string]any{"a": "{{missing}}", "b": "x {{other}}"}

	_, _, err := RenderDocument(tmpl, map[string]any{}, DocumentOptions{})
	require.Error(t, err)
	var pe *ProcessingError
	require.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Errors, 2)

	out, res, err := RenderDocument(tmpl, map[string]any{}, DocumentOptions{Options: Options{AllowPartialResolution: true}})
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, res.Status)
	assert.Equal(t, map[string]any{"a": "{{missing}}", "b": "x {{other}}"}, out)
}

func TestRenderDocument_DeterministicOrder(t *testing.T) {
	tmpl := map[string]any{
		"delta": "{{d}}",
		"alpha": "{{a}}",
		"charlie": map[string]any{
			"zulu": "{{z}}",
			"kilo": "{{k}}",
		},
		"bravo": "{{b}}",
	}
	want := []string{"{{a}}", "{{b}}", "{{k}}", "{{z}}", "{{d}}"}

	for i := 0; i < 20; i++ {
		_, res, err := RenderDocument(tmpl, map[string]any{}, DocumentOptions{Options: Options{AllowPartialResolution: true}})
		require.NoError(t, err)
		got := make([]string, len(res.Unresolved))
		for j, v := range res.Unresolved {
			got[j] = v.Placeholder()
		}
		assert.Equal(t, want, got)

		_, _, err = RenderDocument(tmpl, map[string]any{}, DocumentOptions{})
		var pe *ProcessingError
		require.True(t, errors.As(err, &pe))
		require.Len(t, pe.Errors, len(want))
		assert.Equal(t, "{{a}}", pe.Errors[0].Variable.Placeholder())
	}
}

func TestRenderDocument_FirstInvalidPlaceholderWins(t *testing.T) {
	tmpl := map[string]any{"b": "{{9b}}", "a": "{{9a}}"}
	for i := 0; i < 20; i++ {
		_, _, err := RenderDocument(tmpl, map[string]any{}, DocumentOptions{Options: Options{AllowPartialResolution: true}})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
		assert.Contains(t, err.Error(), "9a")
	}
}
