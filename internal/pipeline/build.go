package pipeline

import (
	"time"

	"github.com/starford/fmschema/internal/derivation"
	"github.com/starford/fmschema/internal/models"
	"github.com/starford/fmschema/internal/schema"
)

// Warning is a non-fatal problem found during a build.
type Warning struct {
	Stage   string `json:"stage"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Warning stages.
const (
	StageRead      = "read"
	StageExtract   = "extract"
	StagePart      = "part"
	StageDerive    = "derive"
	StageAggregate = "aggregate"
	StageTemplate  = "template"
)

// FormatText is reported in Stats.Format when a text template produced the
// output.
const FormatText = "text"

// Stats summarises one build.
type Stats struct {
	Files          int                 `json:"files"`
	Documents      int                 `json:"documents"`
	Cached         int                 `json:"cached"`
	Items          int                 `json:"items"`
	Skipped        int                 `json:"skipped"`
	RuleErrors     int                 `json:"rule_errors"`
	Pruned         int                 `json:"pruned"`
	Strategy       derivation.Strategy `json:"strategy"`
	Format         string              `json:"format"`
	OutputBytes    int                 `json:"output_bytes"`
	OutputChecksum string              `json:"output_checksum"`
	Duration       time.Duration       `json:"duration_ns"`
}

// Build is the result of one pipeline run. It is immutable once published.
type Build struct {
	Documents  []models.Document `json:"documents"`
	Aggregate  map[string]any    `json:"aggregate"`
	Rendered   any               `json:"rendered,omitempty"`
	Unresolved []string          `json:"unresolved,omitempty"`
	Output     []byte            `json:"-"`
	Directives schema.Directives `json:"directives"`
	Stats      Stats             `json:"stats"`
	Warnings   []Warning         `json:"warnings,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}
