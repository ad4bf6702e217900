package schema

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/propertypath"
)

// Directives is a snapshot of every aggregation directive in a schema.
type Directives struct {
	HasFrontmatterPart bool             `json:"hasFrontmatterPart"`
	PartPath           string           `json:"partPath,omitempty"`
	Rules              []DerivationRule `json:"derivationRules,omitempty"`
	FlattenPaths       []string         `json:"flattenPaths,omitempty"`
	Template           string           `json:"template,omitempty"`
	ItemsTemplate      string           `json:"itemsTemplate,omitempty"`
}

// Directives reads and validates all directives at once.
func (s *Schema) Directives() (Directives, error) {
	rules, err := s.DerivedRules()
	if err != nil {
		return Directives{}, err
	}
	d := Directives{
		HasFrontmatterPart: s.HasFrontmatterPart(),
		Rules:              rules,
		FlattenPaths:       s.FlattenPaths(),
	}
	d.PartPath, _ = s.FindFrontmatterPartPath()
	d.Template, _ = s.TemplateRef()
	d.ItemsTemplate, _ = s.ItemsTemplateRef()

	if err := d.Validate(); err != nil {
		return Directives{}, err
	}
	return d, nil
}

// Validate checks directive path syntax.
func (d *Directives) Validate() error {
	err := validation.ValidateStruct(d,
		validation.Field(&d.PartPath, validation.By(pathRule)),
		validation.Field(&d.FlattenPaths, validation.Each(validation.By(pathRule))),
	)
	if err != nil {
		return fmt.Errorf("schema: directives: %w: %v", apperr.ErrInvalidFormat, err)
	}
	for i := range d.Rules {
		if err := d.Rules[i].Validate(); err != nil {
			return fmt.Errorf("schema: directives: rule %d: %w", i, err)
		}
	}
	return nil
}

func pathRule(value any) error {
	p, _ := value.(string)
	if p == "" {
		return nil
	}
	return propertypath.Validate(p)
}
