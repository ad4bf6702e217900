package derivation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/frontmatter"
	"github.com/starford/fmschema/internal/propertypath"
	"github.com/starford/fmschema/internal/schema"
)

// Aggregator is a pluggable external implementation of rule application.
// The engine calls it first and falls back to its own logic unless the
// returned error is a terminal *AggregatorError.
type Aggregator interface {
	Aggregate(docs []frontmatter.Record, rules []AggregatorRule, base map[string]any) (*AggregatorResult, error)
}

// AggregatorFunc adapts a function to Aggregator.
type AggregatorFunc func(docs []frontmatter.Record, rules []AggregatorRule, base map[string]any) (*AggregatorResult, error)

// Aggregate calls f.
func (f AggregatorFunc) Aggregate(docs []frontmatter.Record, rules []AggregatorRule, base map[string]any) (*AggregatorResult, error) {
	return f(docs, rules, base)
}

// AggregatorRule is the rule shape handed to an external aggregator. For
// array-notation sources, SourcePath holds only the item property.
type AggregatorRule struct {
	SourcePath     string
	TargetField    string
	Unique         bool
	OriginalSource string
	ArrayNotation  bool
}

// AggregatorResult is what an external aggregator returns. BaseData is the
// aggregate skeleton; DerivedFields are overlaid on it.
type AggregatorResult struct {
	BaseData      map[string]any
	DerivedFields map[string]any
}

// ErrorKind classifies an external aggregator failure.
type ErrorKind int

const (
	// KindFallback lets the engine continue with its internal logic.
	KindFallback ErrorKind = iota
	// KindTerminal aborts the aggregation.
	KindTerminal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTerminal:
		return "terminal"
	default:
		return "fallback"
	}
}

// AggregatorError is the typed failure an Aggregator returns to choose
// between aborting and falling back.
type AggregatorError struct {
	Kind ErrorKind
	Err  error
}

// Terminal wraps err as an aborting failure.
func Terminal(err error) *AggregatorError {
	return &AggregatorError{Kind: KindTerminal, Err: err}
}

// Fallback wraps err as a recoverable failure.
func Fallback(err error) *AggregatorError {
	return &AggregatorError{Kind: KindFallback, Err: err}
}

func (e *AggregatorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("aggregator: %s failure", e.Kind)
	}
	return fmt.Sprintf("aggregator: %s failure: %v", e.Kind, e.Err)
}

func (e *AggregatorError) Unwrap() error { return e.Err }

// Is makes terminal failures match apperr.ErrAggregationFailed.
func (e *AggregatorError) Is(target error) bool {
	return e.Kind == KindTerminal && target == apperr.ErrAggregationFailed
}

// IsTerminal reports whether err carries a terminal aggregator failure.
func IsTerminal(err error) bool {
	var ae *AggregatorError
	return errors.As(err, &ae) && ae.Kind == KindTerminal
}

// convertRule turns a schema rule into the external shape.
func convertRule(r schema.DerivationRule) (AggregatorRule, error) {
	if err := r.Validate(); err != nil {
		return AggregatorRule{}, err
	}
	out := AggregatorRule{
		SourcePath:     r.SourcePath,
		TargetField:    r.TargetField,
		Unique:         r.Unique,
		OriginalSource: r.SourcePath,
	}
	if _, prop, ok := propertypath.SplitArrayNotation(r.SourcePath); ok {
		out.SourcePath = prop
		out.ArrayNotation = true
		return out, nil
	}
	if strings.Contains(r.SourcePath, propertypath.ArraySuffix) {
		return AggregatorRule{}, fmt.Errorf("derivation: %q: array notation without property: %w", r.SourcePath, apperr.ErrInvalidFormat)
	}
	return out, nil
}

func convertAll(rules []schema.DerivationRule) ([]AggregatorRule, error) {
	out := make([]AggregatorRule, 0, len(rules))
	for _, r := range rules {
		c, err := convertRule(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
