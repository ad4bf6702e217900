// Package extract implements the x-frontmatter-part contract: each document's
// frontmatter becomes one item of the aggregate array declared by the schema.
package extract

import (
	"fmt"
	"log/slog"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/frontmatter"
	"github.com/starford/fmschema/internal/schema"
)

// ItemError records a document that could not become an item.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("document %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Result is the outcome of Process. Records is never empty when the input
// was non-empty.
type Result struct {
	Records  []frontmatter.Record
	Skipped  []ItemError
	PartPath string
	// FellBack is set when the part directive produced no items and the
	// original documents were returned instead.
	FellBack bool
}

// Extractor turns documents into part items.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Process converts every document into a part item when the schema declares
// x-frontmatter-part with a resolvable path. The whole frontmatter object of
// a document becomes the item; the part path only says where the array lives
// in the aggregate. Documents that fail item construction are skipped.
func (e *Extractor) Process(docs []frontmatter.Record, s *schema.Schema) Result {
	if s == nil || !s.HasFrontmatterPart() {
		return Result{Records: docs}
	}
	partPath, ok := s.FindFrontmatterPartPath()
	if !ok {
		e.logger.Debug("extract: part directive without path, documents unchanged")
		return Result{Records: docs}
	}

	flatten := s.FlattenPaths()
	res := Result{PartPath: partPath}
	for i, doc := range docs {
		item, err := NewItem(doc.Data(), flatten)
		if err != nil {
			res.Skipped = append(res.Skipped, ItemError{Index: i, Err: err})
			e.logger.Warn("extract: item skipped",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}
		res.Records = append(res.Records, item)
	}

	if len(res.Records) == 0 {
		e.logger.Warn("extract: no items produced, keeping original documents",
			slog.String("part_path", partPath),
			slog.Int("documents", len(docs)))
		res.Records = docs
		res.FellBack = true
	}
	return res
}

// NewItem builds one part item from a document's frontmatter. Empty
// frontmatter is rejected. Each flatten path that resolves is replaced by a
// flat array of its leaf values.
func NewItem(data map[string]any, flatten []string) (frontmatter.Record, error) {
	if data == nil {
		return frontmatter.Record{}, fmt.Errorf("extract: item: %w", apperr.ErrInvalidFormat)
	}
	if len(data) == 0 {
		return frontmatter.Record{}, fmt.Errorf("extract: item has no frontmatter: %w", apperr.ErrEmptyInput)
	}
	rec, err := frontmatter.New(data)
	if err != nil {
		return frontmatter.Record{}, err
	}
	if len(flatten) == 0 {
		return rec, nil
	}

	b := frontmatter.BuilderFrom(rec)
	for _, p := range flatten {
		v, err := rec.Get(p)
		if err != nil {
			continue
		}
		if err := b.Set(p, FlattenValue(v)); err != nil {
			return frontmatter.Record{}, fmt.Errorf("extract: flatten %s: %w", p, err)
		}
	}
	return b.Build()
}

// FlattenValue returns nested arrays as a single flat array. A scalar becomes
// a one-element array and nil becomes an empty array.
func FlattenValue(v any) []any {
	out := []any{}
	var walk func(any)
	walk = func(x any) {
		switch t := x.(type) {
		case nil:
		case []any:
			for _, el := range t {
				walk(el)
			}
		default:
			out = append(out, t)
		}
	}
	walk(v)
	return out
}

// BuildStructure returns an aggregate holding every document's frontmatter
// as an array at partPath.
func BuildStructure(docs []frontmatter.Record, partPath string) (frontmatter.Record, error) {
	if partPath == "" {
		return frontmatter.Record{}, fmt.Errorf("extract: build structure: %w", apperr.ErrEmptyInput)
	}
	items := make([]any, len(docs))
	for i, d := range docs {
		items[i] = d.Data()
	}
	b := frontmatter.NewBuilder()
	if err := b.Set(partPath, items); err != nil {
		return frontmatter.Record{}, fmt.Errorf("extract: build structure: %w", err)
	}
	return b.Build()
}
