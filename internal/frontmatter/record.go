// Package frontmatter holds the immutable Record type that carries one
// document's frontmatter (or an aggregate of many) through the pipeline, and
// the Builder scratch type used to construct new records.
package frontmatter

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/propertypath"
)

// Record is a read-only view over a frontmatter object. Every transformation
// returns a new Record; the underlying map is never shared with callers.
type Record struct {
	data map[string]any
}

// New validates data and returns a Record holding a deep copy of it.
// An empty map is valid and means "no frontmatter"; nil is rejected.
func New(data map[string]any) (Record, error) {
	if data == nil {
		return Record{}, fmt.Errorf("frontmatter: nil data: %w", apperr.ErrInvalidFormat)
	}
	return Record{data: Normalize(data).(map[string]any)}, nil
}

// FromValue builds a Record from an arbitrary decoded value, which must be
// object-shaped.
func FromValue(v any) (Record, error) {
	switch m := Normalize(v).(type) {
	case map[string]any:
		return Record{data: m}, nil
	case nil:
		return Record{}, fmt.Errorf("frontmatter: nil data: %w", apperr.ErrInvalidFormat)
	default:
		return Record{}, fmt.Errorf("frontmatter: expected object, got %T: %w", v, apperr.ErrTypeMismatch)
	}
}

// Empty returns a Record with no fields.
func Empty() Record {
	return Record{data: map[string]any{}}
}

// Data returns a deep copy of the record's fields.
func (r Record) Data() map[string]any {
	if r.data == nil {
		return map[string]any{}
	}
	return copyMap(r.data)
}

// Get returns the value at a dot path.
func (r Record) Get(path string) (any, error) {
	v, err := propertypath.Get(r.data, path)
	if err != nil {
		return nil, err
	}
	return copyValue(v), nil
}

// Has reports whether path resolves.
func (r Record) Has(path string) bool {
	return propertypath.Has(r.data, path)
}

// Keys returns the top-level keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of top-level fields.
func (r Record) Len() int { return len(r.data) }

// IsEmpty reports whether the record has no fields.
func (r Record) IsEmpty() bool { return len(r.data) == 0 }

// Equal reports structural equality.
func (r Record) Equal(other Record) bool {
	if r.IsEmpty() && other.IsEmpty() {
		return true
	}
	return reflect.DeepEqual(r.data, other.data)
}

// With returns a copy of r with value set at path.
func (r Record) With(path string, value any) (Record, error) {
	b := BuilderFrom(r)
	if err := b.Set(path, value); err != nil {
		return Record{}, err
	}
	return b.Build()
}

// Merge returns a new record holding r's fields overlaid by other's
// top-level fields. other wins on key collision.
func (r Record) Merge(other Record) Record {
	out := copyMap(r.data)
	if out == nil {
		out = make(map[string]any, len(other.data))
	}
	for k, v := range other.data {
		out[k] = copyValue(v)
	}
	return Record{data: out}
}

// String implements fmt.Stringer for log output.
func (r Record) String() string {
	return fmt.Sprintf("frontmatter.Record%v", r.data)
}
