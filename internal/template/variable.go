// Package template parses {{...}} placeholders and resolves them against
// aggregate data.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/propertypath"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	wholeRe       = regexp.MustCompile(`^\{\{([^{}]*)\}\}$`)
	identifierRe  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Variable is one parsed placeholder. The concrete types are
// SimpleVariable, PathVariable and ConditionalVariable.
type Variable interface {
	// Placeholder returns the literal "{{...}}" text the variable came from.
	Placeholder() string
	isVariable()
}

// SimpleVariable is "{{name}}" or "{{name|default}}".
type SimpleVariable struct {
	Raw        string
	Name       string
	Default    string
	HasDefault bool
}

// PathVariable is "{{a.b.c}}" or "{{a.b.c|default}}".
type PathVariable struct {
	Raw        string
	Path       string
	Default    string
	HasDefault bool
}

// ConditionalVariable is "{{cond ? yes : no}}". The branches are literal
// text; nested expressions are not evaluated.
type ConditionalVariable struct {
	Raw        string
	Condition  string
	TrueValue  string
	FalseValue string
}

func (v SimpleVariable) Placeholder() string      { return v.Raw }
func (v PathVariable) Placeholder() string        { return v.Raw }
func (v ConditionalVariable) Placeholder() string { return v.Raw }

func (SimpleVariable) isVariable()      {}
func (PathVariable) isVariable()        {}
func (ConditionalVariable) isVariable() {}

// ExtractVariables returns the distinct placeholders in tmpl in order of
// first appearance.
func ExtractVariables(tmpl string) ([]Variable, error) {
	matches := placeholderRe.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]Variable, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m[0]]; dup {
			continue
		}
		seen[m[0]] = struct{}{}
		v, err := ParseVariable(m[0], m[1])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseVariable classifies the content of one placeholder.
//
// Content with both '?' and ':' is a conditional, split on the first '?' and
// the last ':' (so a ternary nested in the true branch is not supported).
// Content with '.' is a path. Anything else is a simple identifier. Both
// path and simple forms accept a "|default" suffix.
func ParseVariable(raw, content string) (Variable, error) {
	content = strings.TrimSpace(content)

	if strings.Contains(content, "?") && strings.Contains(content, ":") {
		q := strings.Index(content, "?")
		c := strings.LastIndex(content, ":")
		if c < q {
			return nil, fmt.Errorf("template: %s: ':' before '?': %w", raw, apperr.ErrInvalidFormat)
		}
		v := ConditionalVariable{
			Raw:        raw,
			Condition:  strings.TrimSpace(content[:q]),
			TrueValue:  strings.TrimSpace(content[q+1 : c]),
			FalseValue: strings.TrimSpace(content[c+1:]),
		}
		if v.Condition == "" || v.TrueValue == "" || v.FalseValue == "" {
			return nil, fmt.Errorf("template: %s: conditional needs condition and both branches: %w", raw, apperr.ErrInvalidFormat)
		}
		return v, nil
	}

	name, def, hasDefault := splitDefault(content)

	if strings.Contains(content, ".") {
		if err := propertypath.Validate(name); err != nil {
			return nil, fmt.Errorf("template: %s: %w", raw, err)
		}
		return PathVariable{Raw: raw, Path: name, Default: def, HasDefault: hasDefault}, nil
	}

	if !identifierRe.MatchString(name) {
		return nil, fmt.Errorf("template: %s: invalid variable name %q: %w", raw, name, apperr.ErrInvalidFormat)
	}
	return SimpleVariable{Raw: raw, Name: name, Default: def, HasDefault: hasDefault}, nil
}

func splitDefault(content string) (name, def string, ok bool) {
	i := strings.Index(content, "|")
	if i < 0 {
		return content, "", false
	}
	return strings.TrimSpace(content[:i]), strings.TrimSpace(content[i+1:]), true
}
