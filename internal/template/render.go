package template

import (
	"maps"
	"slices"
	"strings"

	"github.com/starford/fmschema/internal/frontmatter"
)

// ItemsMarker inside a template array is replaced by the rendered part items.
const ItemsMarker = "{@items}"

// DocumentOptions extends Options for structured templates.
type DocumentOptions struct {
	Options
	// Items replace ItemsMarker. Each map item is rendered through
	// ItemTemplate when one is set, and copied as is otherwise.
	Items        []any
	ItemTemplate any
}

// RenderDocument renders a structured (JSON/YAML) template against data.
// A string that is exactly one placeholder is replaced by the typed value;
// other strings are resolved as text. The returned Result aggregates every
// placeholder seen, and its Text is empty.
func RenderDocument(tmpl any, data map[string]any, opts DocumentOptions) (any, *Result, error) {
	r := &renderer{opts: opts, res: &Result{}}
	out := r.render(frontmatter.Normalize(tmpl), data)

	if len(r.res.Errors) > 0 && !opts.AllowPartialResolution {
		return nil, nil, &ProcessingError{Errors: r.res.Errors}
	}
	if r.err != nil {
		return nil, nil, r.err
	}
	if len(r.res.Unresolved) > 0 {
		r.res.Status = StatusPartialSuccess
	}
	return out, r.res, nil
}

type renderer struct {
	opts DocumentOptions
	res  *Result
	err  error
}

func (r *renderer) render(node any, data map[string]any) any {
	switch t := node.(type) {
	case string:
		return r.renderString(t, data)
	case map[string]any:
		out := make(map[string]any, len(t))
		for _, k := range slices.Sorted(maps.Keys(t)) {
			out[k] = r.render(t[k], data)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, el := range t {
			if s, ok := el.(string); ok && strings.TrimSpace(s) == ItemsMarker {
				out = append(out, r.renderItems()...)
				continue
			}
			out = append(out, r.render(el, data))
		}
		return out
	default:
		return t
	}
}

func (r *renderer) renderItems() []any {
	out := make([]any, 0, len(r.opts.Items))
	for _, item := range r.opts.Items {
		obj, isObj := item.(map[string]any)
		if r.opts.ItemTemplate == nil || !isObj {
			out = append(out, item)
			continue
		}
		out = append(out, r.render(frontmatter.Normalize(r.opts.ItemTemplate), obj))
	}
	return out
}

func (r *renderer) renderString(s string, data map[string]any) any {
	if r.err != nil {
		return s
	}
	if m := wholeRe.FindStringSubmatch(s); m != nil {
		v, err := ParseVariable(m[0], m[1])
		if err != nil {
			r.err = err
			return s
		}
		val, usedDefault, err := resolveVariable(v, data, r.opts.Options)
		if err != nil {
			r.res.Unresolved = append(r.res.Unresolved, v)
			r.res.Errors = append(r.res.Errors, VariableError{Variable: v, Err: err})
			return s
		}
		r.res.Resolved = append(r.res.Resolved, Resolution{Variable: v, Value: FormatValue(val), UsedDefault: usedDefault})
		return frontmatter.Normalize(val)
	}
	if !strings.Contains(s, "{{") {
		return s
	}

	opts := r.opts.Options
	opts.AllowPartialResolution = true
	sub, err := Resolve(s, data, opts)
	if err != nil {
		r.err = err
		return s
	}
	r.res.Resolved = append(r.res.Resolved, sub.Resolved...)
	r.res.Unresolved = append(r.res.Unresolved, sub.Unresolved...)
	r.res.Errors = append(r.res.Errors, sub.Errors...)
	return sub.Text
}
