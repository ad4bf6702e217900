// Package parser splits Markdown files into frontmatter and body.
package parser

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Frontmatter encodings reported in Result.Format.
const (
	FormatNone = "none"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	// Frontmatter is never nil. A file without frontmatter yields an empty map.
	Frontmatter map[string]any
	Body        string
	Format      string
}

// Parse extracts the frontmatter block and body from raw Markdown bytes.
// Malformed frontmatter is not an error: the whole file becomes the body.
func Parse(data []byte) (*Result, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed := bytes.TrimLeft(data, "\n\r")

	switch {
	case bytes.HasPrefix(trimmed, []byte("---json")):
		if fm, body, ok := splitFenced(trimmed, "---json", decodeJSON); ok {
			return &Result{Frontmatter: fm, Body: body, Format: FormatJSON}, nil
		}
	case bytes.HasPrefix(trimmed, []byte("---")):
		if fm, body, ok := splitFenced(trimmed, "---", decodeYAML); ok {
			return &Result{Frontmatter: fm, Body: body, Format: FormatYAML}, nil
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		if fm, body, ok := splitJSONObject(trimmed); ok {
			return &Result{Frontmatter: fm, Body: body, Format: FormatJSON}, nil
		}
	}
	return &Result{Frontmatter: map[string]any{}, Body: string(data), Format: FormatNone}, nil
}

type decoder func([]byte) (map[string]any, bool)

// splitFenced handles a block opened by open and closed by a "---" line.
func splitFenced(data []byte, open string, decode decoder) (map[string]any, string, bool) {
	rest := data[len(open):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		// The opening fence must be alone on its line.
		return nil, "", false
	}
	rest = rest[nl:]

	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, "", false
	}
	block := rest[:idx]
	after := rest[idx+len("\n---"):]
	if eol := bytes.IndexByte(after, '\n'); eol >= 0 {
		if len(bytes.TrimSpace(after[:eol])) != 0 {
			return nil, "", false
		}
		after = after[eol+1:]
	} else if len(bytes.TrimSpace(after)) != 0 {
		return nil, "", false
	} else {
		after = nil
	}

	fm, ok := decode(block)
	if !ok {
		return nil, "", false
	}
	return fm, string(bytes.TrimLeft(after, "\n\r")), true
}

// splitJSONObject reads one leading JSON object and treats the rest as body.
func splitJSONObject(data []byte) (map[string]any, string, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fm map[string]any
	if err := dec.Decode(&fm); err != nil || fm == nil {
		return nil, "", false
	}
	body := data[dec.InputOffset():]
	return normalizeNumbers(fm).(map[string]any), string(bytes.TrimLeft(body, "\n\r")), true
}

func decodeYAML(block []byte) (map[string]any, bool) {
	if len(bytes.TrimSpace(block)) == 0 {
		return map[string]any{}, true
	}
	var fm map[string]any
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, false
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return fm, true
}

func decodeJSON(block []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(block))
	dec.UseNumber()
	var fm map[string]any
	if err := dec.Decode(&fm); err != nil || fm == nil {
		return nil, false
	}
	return normalizeNumbers(fm).(map[string]any), true
}

// normalizeNumbers turns json.Number into int when integral, float64 otherwise,
// so JSON and YAML frontmatter produce the same value types.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, el := range t {
			t[k] = normalizeNumbers(el)
		}
		return t
	case []any:
		for i, el := range t {
			t[i] = normalizeNumbers(el)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return t
	}
}
