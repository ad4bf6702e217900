package frontmatter

import (
	"fmt"

	"github.com/starford/fmschema/internal/propertypath"
)

// Builder is a mutable scratch object. It is the only place where
// propertypath.Set is allowed to write; Build hands the result over as an
// immutable Record and resets the builder.
type Builder struct {
	data map[string]any
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{data: make(map[string]any)}
}

// BuilderFrom returns a builder seeded with a copy of r.
func BuilderFrom(r Record) *Builder {
	data := copyMap(r.data)
	if data == nil {
		data = make(map[string]any)
	}
	return &Builder{data: data}
}

// Set writes value at path.
func (b *Builder) Set(path string, value any) error {
	if b.data == nil {
		b.data = make(map[string]any)
	}
	if err := propertypath.Set(b.data, path, copyValue(Normalize(value))); err != nil {
		return fmt.Errorf("frontmatter: builder set: %w", err)
	}
	return nil
}

// Merge overlays fields onto the builder's top level; fields wins on collision.
func (b *Builder) Merge(fields map[string]any) {
	if b.data == nil {
		b.data = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		b.data[k] = copyValue(Normalize(v))
	}
}

// Build returns the accumulated Record and leaves the builder empty.
func (b *Builder) Build() (Record, error) {
	data := b.data
	if data == nil {
		data = make(map[string]any)
	}
	b.data = make(map[string]any)
	return Record{data: data}, nil
}
