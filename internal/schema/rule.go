package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/propertypath"
)

// DerivationRule computes TargetField in the aggregate from the values found
// at SourcePath across all documents. SourcePath may use array notation,
// "prefix[].property".
type DerivationRule struct {
	SourcePath  string `json:"sourcePath" yaml:"sourcePath"`
	TargetField string `json:"targetField" yaml:"targetField"`
	Unique      bool   `json:"unique" yaml:"unique"`
}

// NewDerivationRule trims and validates its inputs.
func NewDerivationRule(sourcePath, targetField string, unique bool) (DerivationRule, error) {
	r := DerivationRule{
		SourcePath:  strings.TrimSpace(sourcePath),
		TargetField: strings.TrimSpace(targetField),
		Unique:      unique,
	}
	if err := r.Validate(); err != nil {
		return DerivationRule{}, err
	}
	return r, nil
}

// Validate checks that both paths are non-blank and well formed. SourcePath
// may use array notation once; TargetField is a plain dotted path.
func (r DerivationRule) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.SourcePath, validation.Required, validation.By(notBlank)),
		validation.Field(&r.TargetField, validation.Required, validation.By(notBlank)),
	); err != nil {
		return fmt.Errorf("derivation rule: %w: %v", apperr.ErrEmptyInput, err)
	}
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.SourcePath, validation.By(sourcePathRule)),
		validation.Field(&r.TargetField, validation.By(targetPathRule)),
	); err != nil {
		return fmt.Errorf("derivation rule: %w: %v", apperr.ErrInvalidFormat, err)
	}
	return nil
}

func sourcePathRule(value any) error {
	s, _ := value.(string)
	prefix, prop, ok := propertypath.SplitArrayNotation(s)
	if !ok {
		return propertypath.Validate(s)
	}
	if strings.Contains(prop, propertypath.ArraySuffix) {
		return errors.New("nested array notation")
	}
	if err := propertypath.Validate(prefix); err != nil {
		return err
	}
	return propertypath.Validate(prop)
}

func targetPathRule(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, "[]") {
		return errors.New("array notation not allowed")
	}
	return propertypath.Validate(s)
}

// IsArrayNotation reports whether SourcePath has the form "prefix[].property".
func (r DerivationRule) IsArrayNotation() bool {
	_, _, ok := propertypath.SplitArrayNotation(r.SourcePath)
	return ok
}

// PropertyPath returns the part of SourcePath read from each item: the
// property after "[]." for array notation, the whole path otherwise.
func (r DerivationRule) PropertyPath() string {
	if _, prop, ok := propertypath.SplitArrayNotation(r.SourcePath); ok {
		return prop
	}
	return r.SourcePath
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("must not be blank")
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
