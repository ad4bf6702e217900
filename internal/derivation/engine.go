// Package derivation computes aggregate fields from values spread across many
// documents, following the x-derived-from rules declared in a schema.
package derivation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/extract"
	"github.com/starford/fmschema/internal/frontmatter"
	"github.com/starford/fmschema/internal/propertypath"
	"github.com/starford/fmschema/internal/schema"
)

// Strategy names how an aggregate was produced.
type Strategy string

const (
	StrategyMerge    Strategy = "merge"
	StrategyPart     Strategy = "part"
	StrategyExternal Strategy = "external"
	StrategyInternal Strategy = "internal"
)

// RuleError records a rule that was skipped during internal derivation.
type RuleError struct {
	Rule schema.DerivationRule
	Err  error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %s -> %s: %v", e.Rule.SourcePath, e.Rule.TargetField, e.Err)
}

func (e RuleError) Unwrap() error { return e.Err }

// Outcome is the result of Aggregate. Partial derivation is reported in
// RuleErrors rather than failing the call.
type Outcome struct {
	Record     frontmatter.Record
	Strategy   Strategy
	Applied    []string
	RuleErrors []RuleError
	// ExternalErr is the recoverable aggregator failure that caused a
	// fallback to internal logic, if any.
	ExternalErr error
}

// Option configures an Engine.
type Option func(*Engine)

// WithAggregator installs an external aggregator that is tried first.
func WithAggregator(a Aggregator) Option {
	return func(e *Engine) {
		e.aggregator = a
		e.aggregatorSet = true
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine applies derivation rules.
type Engine struct {
	aggregator    Aggregator
	aggregatorSet bool
	logger        *slog.Logger
}

// New creates an Engine. Passing WithAggregator(nil) or WithLogger(nil) is
// a configuration error.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		return nil, fmt.Errorf("derivation: logger is required: %w", apperr.ErrConfiguration)
	}
	if e.aggregatorSet && e.aggregator == nil {
		return nil, fmt.Errorf("derivation: aggregator option given nil: %w", apperr.ErrConfiguration)
	}
	return e, nil
}

// Aggregate combines docs into one record following the schema's rules.
func (e *Engine) Aggregate(docs []frontmatter.Record, s *schema.Schema) (Outcome, error) {
	if s == nil {
		return Outcome{}, fmt.Errorf("derivation: schema is required: %w", apperr.ErrConfiguration)
	}
	rules, err := s.DerivedRules()
	if err != nil {
		return Outcome{}, err
	}
	if len(rules) == 0 {
		return AggregateWithoutRules(docs, s)
	}

	var externalErr error
	if e.aggregator != nil {
		converted, convErr := convertAll(rules)
		if convErr != nil {
			e.logger.Debug("derivation: rules not convertible, using internal logic",
				slog.String("error", convErr.Error()))
		} else {
			out, ok, err := e.tryExternal(docs, s, converted)
			if err != nil {
				return Outcome{}, err
			}
			if ok {
				return out, nil
			}
			externalErr = out.ExternalErr
		}
	}

	out, err := e.aggregateInternal(docs, s, rules)
	if err != nil {
		return Outcome{}, err
	}
	out.ExternalErr = externalErr
	return out, nil
}

// tryExternal runs the external aggregator. ok is false when the engine
// should fall back; a non-nil error is terminal.
func (e *Engine) tryExternal(docs []frontmatter.Record, s *schema.Schema, rules []AggregatorRule) (Outcome, bool, error) {
	base, err := baseStructure(docs, s)
	if err != nil {
		return Outcome{ExternalErr: err}, false, nil
	}
	res, err := e.aggregator.Aggregate(docs, rules, base.Data())
	if err != nil {
		if IsTerminal(err) {
			e.logger.Error("derivation: external aggregator failed", slog.String("error", err.Error()))
			return Outcome{}, false, fmt.Errorf("derivation: %w", err)
		}
		e.logger.Warn("derivation: external aggregator failed, falling back",
			slog.String("error", err.Error()))
		return Outcome{ExternalErr: err}, false, nil
	}
	if res == nil || res.BaseData == nil {
		err := fmt.Errorf("derivation: external aggregator returned no base data: %w", apperr.ErrInvalidFormat)
		e.logger.Warn("derivation: external result unusable, falling back", slog.String("error", err.Error()))
		return Outcome{ExternalErr: err}, false, nil
	}

	// Derived fields win over base data; dotted keys address nested fields.
	b := frontmatter.NewBuilder()
	b.Merge(res.BaseData)
	for _, key := range sortedKeys(res.DerivedFields) {
		if key == "" {
			continue
		}
		if err := b.Set(key, res.DerivedFields[key]); err != nil {
			return Outcome{ExternalErr: err}, false, nil
		}
	}
	rec, err := b.Build()
	if err != nil {
		return Outcome{ExternalErr: err}, false, nil
	}
	applied := make([]string, 0, len(res.DerivedFields))
	for _, r := range rules {
		if _, ok := res.DerivedFields[r.TargetField]; ok {
			applied = append(applied, r.TargetField)
		}
	}
	return Outcome{Record: rec, Strategy: StrategyExternal, Applied: applied}, true, nil
}

func (e *Engine) aggregateInternal(docs []frontmatter.Record, s *schema.Schema, rules []schema.DerivationRule) (Outcome, error) {
	base, err := baseStructure(docs, s)
	if err != nil {
		return Outcome{}, err
	}
	b := frontmatter.BuilderFrom(base)
	out := Outcome{Strategy: StrategyInternal}
	partPath, hasPart := partPathOf(s)

	for _, rule := range rules {
		values := Collect(docs, rule)
		var err error
		if hasPart && overlaps(rule.TargetField, partPath) {
			err = fmt.Errorf("derivation: target %q overlaps part path %q: %w",
				rule.TargetField, partPath, apperr.ErrInvalidFormat)
		} else {
			err = b.Set(rule.TargetField, values)
		}
		if err != nil {
			out.RuleErrors = append(out.RuleErrors, RuleError{Rule: rule, Err: err})
			e.logger.Warn("derivation: rule skipped",
				slog.String("source", rule.SourcePath),
				slog.String("target", rule.TargetField),
				slog.String("error", err.Error()))
			continue
		}
		out.Applied = append(out.Applied, rule.TargetField)
		e.logger.Debug("derivation: rule applied",
			slog.String("target", rule.TargetField),
			slog.Int("values", len(values)))
	}

	rec, err := b.Build()
	if err != nil {
		return Outcome{}, err
	}
	out.Record = rec
	return out, nil
}

// AggregateWithoutRules builds the part-path array when the schema has one,
// and otherwise merges all documents' top-level fields, later documents
// winning on collision.
func AggregateWithoutRules(docs []frontmatter.Record, s *schema.Schema) (Outcome, error) {
	if partPath, ok := partPathOf(s); ok {
		rec, err := extract.BuildStructure(docs, partPath)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Record: rec, Strategy: StrategyPart}, nil
	}
	return Outcome{Record: MergeAll(docs), Strategy: StrategyMerge}, nil
}

// overlaps reports whether writing target would replace the part array or
// one of its ancestors or descendants.
func overlaps(target, partPath string) bool {
	return target == partPath ||
		strings.HasPrefix(target, partPath+".") ||
		strings.HasPrefix(partPath, target+".")
}

// MergeAll shallow-merges docs left to right.
func MergeAll(docs []frontmatter.Record) frontmatter.Record {
	merged := frontmatter.Empty()
	for _, d := range docs {
		merged = merged.Merge(d)
	}
	return merged
}

func baseStructure(docs []frontmatter.Record, s *schema.Schema) (frontmatter.Record, error) {
	if partPath, ok := partPathOf(s); ok {
		return extract.BuildStructure(docs, partPath)
	}
	return MergeAll(docs), nil
}

func partPathOf(s *schema.Schema) (string, bool) {
	if s == nil {
		return "", false
	}
	return s.FindFrontmatterPartPath()
}

// Collect gathers the values a rule refers to across docs, in document
// order. Documents where the path does not resolve are skipped; array values
// are flattened one level. For "prefix[].property", each document is read as
// an item first, then as a container holding prefix as an array of items.
func Collect(docs []frontmatter.Record, rule schema.DerivationRule) []any {
	values := []any{}
	add := func(v any) {
		if arr, ok := v.([]any); ok {
			values = append(values, arr...)
			return
		}
		values = append(values, v)
	}

	prefix, prop, arrayNotation := propertypath.SplitArrayNotation(rule.SourcePath)
	for _, doc := range docs {
		if !arrayNotation {
			if v, err := doc.Get(rule.SourcePath); err == nil {
				add(v)
			}
			continue
		}
		if v, err := doc.Get(prop); err == nil {
			add(v)
			continue
		}
		container, err := doc.Get(prefix)
		if err != nil {
			continue
		}
		items, ok := container.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if v, err := propertypath.Get(obj, prop); err == nil {
				add(v)
			}
		}
	}

	if rule.Unique {
		return Unique(values)
	}
	return values
}

// Unique drops repeated values, keeping the first occurrence. Values are
// compared by their canonical JSON encoding so objects and arrays work too.
// Values JSON cannot encode, such as NaN, are keyed by type and formatted
// value instead.
func Unique(values []any) []any {
	seen := make(map[string]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		key := uniqueKey(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func uniqueKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return "json:" + string(b)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
