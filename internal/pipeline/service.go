// Package pipeline runs the full build: list input files, extract their
// frontmatter, aggregate through the schema directives, render the template
// and write the output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/starford/fmschema/internal/aggregate"
	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/checksum"
	"github.com/starford/fmschema/internal/derivation"
	"github.com/starford/fmschema/internal/extract"
	"github.com/starford/fmschema/internal/frontmatter"
	"github.com/starford/fmschema/internal/index"
	"github.com/starford/fmschema/internal/models"
	"github.com/starford/fmschema/internal/output"
	"github.com/starford/fmschema/internal/propertypath"
	"github.com/starford/fmschema/internal/schema"
	"github.com/starford/fmschema/internal/storage"
	"github.com/starford/fmschema/internal/template"
)

// Config describes one build.
type Config struct {
	Pattern    string
	Workers    int
	SchemaPath string
	// TemplatePath and ItemsTemplatePath override the schema's x-template
	// and x-template-items directives.
	TemplatePath      string
	ItemsTemplatePath string
	// OutputPath is where the result is written; empty means no file.
	OutputPath string
	// Format is json, yaml or xml; empty infers it from OutputPath.
	Format  string
	XMLRoot string
	Resolve template.Options
}

// Validate checks the build configuration.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Pattern, validation.Required),
		validation.Field(&c.SchemaPath, validation.Required),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.Format, validation.By(func(v any) error {
			if f, _ := v.(string); f != "" && !output.Valid(f) {
				return fmt.Errorf("unsupported format %q", f)
			}
			return nil
		})),
	)
	if err != nil {
		return fmt.Errorf("pipeline: config: %w: %v", apperr.ErrConfiguration, err)
	}
	return nil
}

// Notifier is called after every build attempt.
type Notifier func(b *Build, err error)

// Option configures a Service.
type Option func(*Service)

// WithCache enables the extraction cache.
func WithCache(c index.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier registers a callback run after every build.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

// Service coordinates storage, the extraction cache and the aggregation
// core. Builds are serialised; the last successful one is kept for readers.
type Service struct {
	cfg       Config
	store     storage.Provider
	cache     index.Cache
	logger    *slog.Logger
	notifiers []Notifier

	extractor   *extract.Extractor
	coordinator *aggregate.Coordinator

	buildMu sync.Mutex

	mu   sync.RWMutex
	last *Build
}

// NewService creates a pipeline service reading inputs from store.
func NewService(cfg Config, store storage.Provider, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("pipeline: storage is required: %w", apperr.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	engine, err := derivation.New(derivation.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	s.coordinator, err = aggregate.NewCoordinator(engine, s.logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	s.extractor = extract.New(s.logger)
	return s, nil
}

// Config returns the build configuration.
func (s *Service) Config() Config { return s.cfg }

// Last returns the most recent successful build.
func (s *Service) Last() (*Build, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}

// Build runs the pipeline once. Per-file problems become warnings; schema,
// aggregation, template and output failures abort the build.
func (s *Service) Build(ctx context.Context) (*Build, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	b, err := s.build(ctx)
	if err != nil {
		s.logger.Error("pipeline: build failed", slog.String("error", err.Error()))
	} else {
		s.mu.Lock()
		s.last = b
		s.mu.Unlock()
		s.logger.Info("pipeline: build finished",
			slog.Int("documents", b.Stats.Documents),
			slog.Int("items", b.Stats.Items),
			slog.Int("warnings", len(b.Warnings)),
			slog.String("strategy", string(b.Stats.Strategy)),
			slog.Duration("duration", b.Stats.Duration))
	}
	for _, n := range s.notifiers {
		n(b, err)
	}
	return b, err
}

func (s *Service) build(ctx context.Context) (*Build, error) {
	started := time.Now()
	b := &Build{}

	sch, err := schema.Load(s.cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	b.Directives, err = sch.Directives()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	metas, err := s.store.List(s.cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	b.Stats.Files = len(metas)

	docs, warnings, err := s.extractAll(ctx, metas)
	if err != nil {
		return nil, err
	}
	b.Warnings = append(b.Warnings, warnings...)
	b.Documents = docs

	records := make([]frontmatter.Record, 0, len(docs))
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		rec, err := frontmatter.New(d.Frontmatter)
		if err != nil {
			b.Warnings = append(b.Warnings, Warning{Stage: StageExtract, Path: d.Path, Message: err.Error()})
			continue
		}
		records = append(records, rec)
		paths = append(paths, d.Path)
		if d.Cached {
			b.Stats.Cached++
		}
	}
	b.Stats.Documents = len(records)

	parts := s.extractor.Process(records, sch)
	for _, ie := range parts.Skipped {
		path := ""
		if ie.Index < len(paths) {
			path = paths[ie.Index]
		}
		b.Warnings = append(b.Warnings, Warning{Stage: StagePart, Path: path, Message: ie.Err.Error()})
	}
	b.Stats.Skipped = len(parts.Skipped)
	if parts.PartPath != "" && !parts.FellBack {
		b.Stats.Items = len(parts.Records)
	}

	outcome, err := s.coordinator.AggregateDetailed(parts.Records, sch)
	if err != nil {
		return nil, fmt.Errorf("pipeline: aggregate: %w", err)
	}
	for _, re := range outcome.RuleErrors {
		b.Warnings = append(b.Warnings, Warning{Stage: StageDerive, Path: re.Rule.TargetField, Message: re.Err.Error()})
	}
	if outcome.ExternalErr != nil {
		b.Warnings = append(b.Warnings, Warning{Stage: StageAggregate, Message: outcome.ExternalErr.Error()})
	}
	b.Stats.RuleErrors = len(outcome.RuleErrors)
	b.Stats.Strategy = outcome.Strategy
	b.Aggregate = outcome.Record.Data()

	if err := s.render(b); err != nil {
		return nil, err
	}

	if s.cfg.OutputPath != "" {
		if err := storage.WriteFile(s.outputAbs(), b.Output); err != nil {
			return nil, fmt.Errorf("pipeline: write output: %w", err)
		}
	}

	if s.cache != nil {
		keep := make(map[string]struct{}, len(metas))
		for _, m := range metas {
			keep[m.Path] = struct{}{}
		}
		n, err := s.cache.Prune(keep)
		if err != nil {
			s.logger.Warn("pipeline: cache prune failed", slog.String("error", err.Error()))
		}
		b.Stats.Pruned = n
	}

	b.Stats.OutputBytes = len(b.Output)
	b.Stats.OutputChecksum = checksum.Short(b.Output)
	b.Stats.Duration = time.Since(started)
	b.FinishedAt = time.Now().UTC()
	return b, nil
}

// extractAll reads and parses every listed file in parallel. Results keep
// the listing order so aggregation is deterministic.
func (s *Service) extractAll(ctx context.Context, metas []models.DocumentMeta) ([]models.Document, []Warning, error) {
	docs := make([]*models.Document, len(metas))
	problems := make([]*Warning, len(metas))

	g, gCtx := errgroup.WithContext(ctx)
	if s.cfg.Workers > 0 {
		g.SetLimit(s.cfg.Workers)
	}
	for i, m := range metas {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			data, err := s.store.Read(m.Path)
			if err != nil {
				problems[i] = &Warning{Stage: StageRead, Path: m.Path, Message: err.Error()}
				return nil
			}
			doc, err := index.Extract(s.cache, m.Path, data, m.UpdatedAt, s.logger)
			if err != nil {
				problems[i] = &Warning{Stage: StageExtract, Path: m.Path, Message: err.Error()}
				return nil
			}
			docs[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("pipeline: extract: %w", err)
	}

	out := make([]models.Document, 0, len(metas))
	var warnings []Warning
	for i := range metas {
		if problems[i] != nil {
			s.logger.Warn("pipeline: file skipped",
				slog.String("path", problems[i].Path),
				slog.String("error", problems[i].Message))
			warnings = append(warnings, *problems[i])
			continue
		}
		out = append(out, *docs[i])
	}
	return out, warnings, nil
}

// render applies the configured template, if any, and serialises the result.
func (s *Service) render(b *Build) error {
	tmplPath := s.templatePath(s.cfg.TemplatePath, b.Directives.Template)
	itemsPath := s.templatePath(s.cfg.ItemsTemplatePath, b.Directives.ItemsTemplate)

	format := s.outputFormat()
	b.Stats.Format = format

	if tmplPath == "" {
		b.Rendered = b.Aggregate
		out, err := output.Format(b.Aggregate, format, output.Options{XMLRoot: s.cfg.XMLRoot})
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		b.Output = out
		return nil
	}

	tmpl, text, err := loadTemplate(tmplPath)
	if err != nil {
		return err
	}

	if text {
		res, err := template.Resolve(tmpl.(string), b.Aggregate, s.cfg.Resolve)
		if err != nil {
			return fmt.Errorf("pipeline: template %s: %w", tmplPath, err)
		}
		s.collectUnresolved(b, res)
		b.Stats.Format = FormatText
		b.Rendered = res.Text
		b.Output = []byte(res.Text)
		return nil
	}

	opts := template.DocumentOptions{Options: s.cfg.Resolve, Items: partItems(b.Aggregate, b.Directives.PartPath)}
	if itemsPath != "" {
		itemTmpl, itemText, err := loadTemplate(itemsPath)
		if err != nil {
			return err
		}
		if itemText {
			return fmt.Errorf("pipeline: items template %s must be JSON or YAML: %w", itemsPath, apperr.ErrInvalidFormat)
		}
		opts.ItemTemplate = itemTmpl
	}

	rendered, res, err := template.RenderDocument(tmpl, b.Aggregate, opts)
	if err != nil {
		return fmt.Errorf("pipeline: template %s: %w", tmplPath, err)
	}
	s.collectUnresolved(b, res)
	b.Rendered = rendered

	out, err := output.Format(rendered, format, output.Options{XMLRoot: s.cfg.XMLRoot})
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	b.Output = out
	return nil
}

func (s *Service) collectUnresolved(b *Build, res *template.Result) {
	for _, v := range res.Unresolved {
		b.Unresolved = append(b.Unresolved, v.Placeholder())
	}
	for _, ve := range res.Errors {
		b.Warnings = append(b.Warnings, Warning{Stage: StageTemplate, Path: ve.Variable.Placeholder(), Message: ve.Err.Error()})
	}
}

// Render resolves tmpl against the last successful aggregate.
func (s *Service) Render(tmpl string, opts template.Options) (*template.Result, error) {
	b, ok := s.Last()
	if !ok {
		return nil, fmt.Errorf("pipeline: no build yet: %w", apperr.ErrNotFound)
	}
	return template.Resolve(tmpl, b.Aggregate, opts)
}

// templatePath picks the override or the directive. Directive paths are
// relative to the schema file.
func (s *Service) templatePath(override, directive string) string {
	if override != "" {
		return override
	}
	if directive == "" {
		return ""
	}
	if filepath.IsAbs(directive) {
		return directive
	}
	return filepath.Join(filepath.Dir(s.cfg.SchemaPath), filepath.FromSlash(directive))
}

func (s *Service) outputFormat() string {
	if s.cfg.Format != "" {
		return strings.ToLower(s.cfg.Format)
	}
	if s.cfg.OutputPath != "" {
		if f, err := output.FormatFromPath(s.cfg.OutputPath); err == nil {
			return f
		}
	}
	return output.JSON
}

func (s *Service) outputAbs() string {
	if abs, err := filepath.Abs(s.cfg.OutputPath); err == nil {
		return abs
	}
	return s.cfg.OutputPath
}

// Directives loads the schema and returns its directive snapshot.
func (s *Service) Directives() (schema.Directives, error) {
	sch, err := schema.Load(s.cfg.SchemaPath)
	if err != nil {
		return schema.Directives{}, fmt.Errorf("pipeline: %w", err)
	}
	d, err := sch.Directives()
	if err != nil {
		return schema.Directives{}, fmt.Errorf("pipeline: %w", err)
	}
	return d, nil
}

// TemplateFiles returns the template paths the current configuration and
// directives resolve to, for the watcher.
func (s *Service) TemplateFiles() []string {
	var out []string
	d, _ := s.Directives()
	for _, p := range []string{
		s.templatePath(s.cfg.TemplatePath, d.Template),
		s.templatePath(s.cfg.ItemsTemplatePath, d.ItemsTemplate),
	} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadTemplate reads a template file. JSON and YAML files are structured
// templates; anything else is returned as text.
func loadTemplate(path string) (any, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("pipeline: template %s: %w", path, apperr.ErrNotFound)
		}
		return nil, false, fmt.Errorf("pipeline: read template %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, false, fmt.Errorf("pipeline: template %s: %w: %v", path, apperr.ErrInvalidFormat, err)
		}
		return frontmatter.Normalize(v), false, nil
	default:
		return string(data), true, nil
	}
}

// partItems returns the array at the part path of the aggregate.
func partItems(agg map[string]any, partPath string) []any {
	if partPath == "" {
		return nil
	}
	v, err := propertypath.Get(agg, partPath)
	if err != nil {
		return nil
	}
	items, _ := v.([]any)
	return items
}
