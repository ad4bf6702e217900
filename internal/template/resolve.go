package template

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/propertypath"
)

// Options controls resolution policy.
type Options struct {
	// AllowPartialResolution leaves unresolved placeholders in the output
	// instead of failing the call.
	AllowPartialResolution bool
	// UseDefaults substitutes "|default" values for unresolved variables.
	UseDefaults bool
}

// Status is the outcome of a successful resolution call.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartialSuccess
)

func (s Status) String() string {
	if s == StatusPartialSuccess {
		return "partial_success"
	}
	return "success"
}

// MarshalText lets Status appear by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Resolution is a variable that received a value.
type Resolution struct {
	Variable    Variable
	Value       string
	UsedDefault bool
}

// VariableError is a variable that could not be resolved.
type VariableError struct {
	Variable Variable
	Err      error
}

func (e VariableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Variable.Placeholder(), e.Err)
}

func (e VariableError) Unwrap() error { return e.Err }

// Result is returned by Resolve when the call succeeds, fully or partially.
type Result struct {
	Status     Status
	Text       string
	Resolved   []Resolution
	Unresolved []Variable
	Errors     []VariableError
}

// ProcessingError is returned in strict mode when any variable fails.
type ProcessingError struct {
	Errors []VariableError
}

func (e *ProcessingError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		parts[i] = ve.Error()
	}
	return fmt.Sprintf("template: %d unresolved variable(s): %s", len(e.Errors), strings.Join(parts, "; "))
}

// Is matches apperr.ErrProcessingFailed.
func (e *ProcessingError) Is(target error) bool {
	return target == apperr.ErrProcessingFailed
}

// Unwrap exposes the per-variable causes.
func (e *ProcessingError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, ve := range e.Errors {
		out[i] = ve
	}
	return out
}

// Resolve substitutes every placeholder in tmpl with its value from data.
func Resolve(tmpl string, data map[string]any, opts Options) (*Result, error) {
	vars, err := ExtractVariables(tmpl)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	values := make(map[string]string, len(vars))
	for _, v := range vars {
		val, usedDefault, err := resolveVariable(v, data, opts)
		if err != nil {
			res.Unresolved = append(res.Unresolved, v)
			res.Errors = append(res.Errors, VariableError{Variable: v, Err: err})
			continue
		}
		s := FormatValue(val)
		values[v.Placeholder()] = s
		res.Resolved = append(res.Resolved, Resolution{Variable: v, Value: s, UsedDefault: usedDefault})
	}

	if len(res.Errors) > 0 && !opts.AllowPartialResolution {
		return nil, &ProcessingError{Errors: res.Errors}
	}

	// One pass, so substituted values are never re-scanned for placeholders.
	res.Text = placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		if s, ok := values[ph]; ok {
			return s
		}
		return ph
	})
	if len(res.Unresolved) > 0 {
		res.Status = StatusPartialSuccess
	}
	return res, nil
}

// resolveVariable returns the raw value for v. Conditionals always resolve
// to one of their branches.
func resolveVariable(v Variable, data map[string]any, opts Options) (any, bool, error) {
	switch tv := v.(type) {
	case SimpleVariable:
		if val, ok := data[tv.Name]; ok {
			return val, false, nil
		}
		if opts.UseDefaults && tv.HasDefault {
			return tv.Default, true, nil
		}
		return nil, false, fmt.Errorf("variable %q: %w", tv.Name, apperr.ErrPropertyNotFound)

	case PathVariable:
		val, err := propertypath.Get(data, tv.Path)
		if err == nil {
			return val, false, nil
		}
		if opts.UseDefaults && tv.HasDefault {
			return tv.Default, true, nil
		}
		return nil, false, err

	case ConditionalVariable:
		if conditionHolds(data, tv.Condition) {
			return tv.TrueValue, false, nil
		}
		return tv.FalseValue, false, nil

	default:
		return nil, false, fmt.Errorf("template: unknown variable type %T: %w", v, apperr.ErrInvalidFormat)
	}
}

// conditionHolds looks the condition up as a top-level key first, so a key
// containing dots still matches, then as a dotted path.
func conditionHolds(data map[string]any, cond string) bool {
	if v, ok := data[cond]; ok {
		return Truthy(v)
	}
	v, err := propertypath.Get(data, cond)
	return err == nil && Truthy(v)
}

// Truthy applies JavaScript truthiness: nil, false, 0, NaN and "" are false;
// everything else, including empty collections, is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	default:
		return true
	}
}

// FormatValue renders a resolved value as template text.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
