// Package schema loads JSON Schema documents and reads the x-* extension
// directives that drive frontmatter aggregation.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/frontmatter"
)

// Directive keys recognised in schema documents.
const (
	KeyFrontmatterPart = "x-frontmatter-part"
	KeyDerivedFrom     = "x-derived-from"
	KeyDerivedUnique   = "x-derived-unique"
	KeyFlattenArrays   = "x-flatten-arrays"
	KeyTemplate        = "x-template"
	KeyTemplateItems   = "x-template-items"
)

// maxRefDepth bounds $ref chains so cyclic definitions terminate.
const maxRefDepth = 32

// Schema is a parsed schema document. It is read-only after construction.
type Schema struct {
	root map[string]any
}

// Load reads a JSON or YAML schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("schema: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a JSON or YAML schema document. JSON is accepted because it
// is a subset of YAML.
func Parse(data []byte) (*Schema, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: decode: %w: %v", apperr.ErrInvalidFormat, err)
	}
	root, ok := frontmatter.Normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema: document is not an object: %w", apperr.ErrInvalidFormat)
	}
	return &Schema{root: root}, nil
}

// FromMap wraps an already decoded schema object.
func FromMap(m map[string]any) *Schema {
	root, _ := frontmatter.Normalize(m).(map[string]any)
	if root == nil {
		root = map[string]any{}
	}
	return &Schema{root: root}
}

// Raw returns the underlying document. Callers must not modify it.
func (s *Schema) Raw() map[string]any {
	return s.root
}

// HasFrontmatterPart reports whether any x-frontmatter-part directive is
// declared, whether or not it resolves to a path.
func (s *Schema) HasFrontmatterPart() bool {
	if isDirectiveSet(s.root[KeyFrontmatterPart]) {
		return true
	}
	found := false
	s.walk(func(_ string, prop map[string]any) bool {
		if isDirectiveSet(prop[KeyFrontmatterPart]) {
			found = true
			return false
		}
		return true
	})
	return found
}

// FindFrontmatterPartPath returns the aggregate path at which per-document
// items are collected. ok is false when the schema declares none.
func (s *Schema) FindFrontmatterPartPath() (string, bool) {
	if p, isString := s.root[KeyFrontmatterPart].(string); isString {
		p = strings.TrimSpace(p)
		return p, p != ""
	}
	var path string
	s.walk(func(p string, prop map[string]any) bool {
		if flag, _ := prop[KeyFrontmatterPart].(bool); flag && isArraySchema(prop) {
			path = p
			return false
		}
		return true
	})
	return path, path != ""
}

// FindFrontmatterPartSchema returns the items schema of the part property.
func (s *Schema) FindFrontmatterPartSchema() (map[string]any, bool) {
	path, ok := s.FindFrontmatterPartPath()
	if !ok {
		return nil, false
	}
	prop, ok := s.propertyAt(path)
	if !ok {
		return nil, false
	}
	items, ok := s.resolve(prop["items"], 0)
	return items, ok
}

// DerivedRules returns one rule for every property carrying x-derived-from.
// A malformed declaration fails the whole call.
func (s *Schema) DerivedRules() ([]DerivationRule, error) {
	var (
		rules []DerivationRule
		err   error
	)
	s.walk(func(p string, prop map[string]any) bool {
		raw, declared := prop[KeyDerivedFrom]
		if !declared {
			return true
		}
		source, isString := raw.(string)
		if !isString {
			err = fmt.Errorf("schema: %s: %s must be a string: %w", p, KeyDerivedFrom, apperr.ErrInvalidFormat)
			return false
		}
		unique, _ := prop[KeyDerivedUnique].(bool)
		rule, ruleErr := NewDerivationRule(source, p, unique)
		if ruleErr != nil {
			err = fmt.Errorf("schema: %s: %w", p, ruleErr)
			return false
		}
		rules = append(rules, rule)
		return true
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// FlattenPaths returns the item-relative paths declared with
// x-flatten-arrays inside the part items schema.
func (s *Schema) FlattenPaths() []string {
	items, ok := s.FindFrontmatterPartSchema()
	if !ok {
		return nil
	}
	var out []string
	if p, ok := items[KeyFlattenArrays].(string); ok && p != "" {
		out = append(out, p)
	}
	s.walkFrom(items, "", 0, func(_ string, prop map[string]any) bool {
		if p, ok := prop[KeyFlattenArrays].(string); ok && p != "" {
			out = append(out, p)
		}
		return true
	})
	return out
}

// TemplateRef returns the x-template value of the root.
func (s *Schema) TemplateRef() (string, bool) {
	v, ok := s.root[KeyTemplate].(string)
	return v, ok && v != ""
}

// ItemsTemplateRef returns the x-template-items value of the root.
func (s *Schema) ItemsTemplateRef() (string, bool) {
	v, ok := s.root[KeyTemplateItems].(string)
	return v, ok && v != ""
}

// walk visits every property schema depth-first in sorted key order. visit
// returns false to stop.
func (s *Schema) walk(visit func(path string, prop map[string]any) bool) {
	s.walkFrom(s.root, "", 0, visit)
}

func (s *Schema) walkFrom(node map[string]any, prefix string, depth int, visit func(string, map[string]any) bool) bool {
	if depth > maxRefDepth {
		return true
	}
	props, _ := node["properties"].(map[string]any)
	for _, name := range sortedKeys(props) {
		prop, ok := s.resolve(props[name], 0)
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if !visit(path, prop) {
			return false
		}
		if !s.walkFrom(prop, path, depth+1, visit) {
			return false
		}
	}
	return true
}

// propertyAt follows a dot path through nested properties.
func (s *Schema) propertyAt(path string) (map[string]any, bool) {
	node := s.root
	for _, seg := range strings.Split(path, ".") {
		props, _ := node["properties"].(map[string]any)
		next, ok := s.resolve(props[seg], 0)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

// resolve follows local $ref pointers ("#/definitions/x", "#/$defs/x").
func (s *Schema) resolve(v any, depth int) (map[string]any, bool) {
	node, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	ref, isRef := node["$ref"].(string)
	if !isRef {
		return node, true
	}
	if depth >= maxRefDepth || !strings.HasPrefix(ref, "#/") {
		return nil, false
	}
	var target any = s.root
	for _, seg := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		m, ok := target.(map[string]any)
		if !ok {
			return nil, false
		}
		target = m[seg]
	}
	resolved, ok := s.resolve(target, depth+1)
	if !ok {
		return nil, false
	}
	// Sibling keywords next to $ref extend the referenced schema.
	if len(node) > 1 {
		merged := make(map[string]any, len(resolved)+len(node))
		for k, val := range resolved {
			merged[k] = val
		}
		for k, val := range node {
			if k != "$ref" {
				merged[k] = val
			}
		}
		return merged, true
	}
	return resolved, true
}

func isArraySchema(prop map[string]any) bool {
	switch t := prop["type"].(type) {
	case string:
		return t == "array"
	case []any:
		for _, v := range t {
			if v == "array" {
				return true
			}
		}
		return false
	default:
		_, hasItems := prop["items"]
		return hasItems
	}
}

func isDirectiveSet(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return false
	}
}
