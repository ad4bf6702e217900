// Package aggregate is the entry point that turns a set of per-document
// records into one aggregate record.
package aggregate

import (
	"fmt"
	"log/slog"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/derivation"
	"github.com/starford/fmschema/internal/frontmatter"
	"github.com/starford/fmschema/internal/schema"
)

// Coordinator picks the aggregation strategy for a schema. It has no error
// recovery of its own: failures from the engine are returned unchanged.
type Coordinator struct {
	engine *derivation.Engine
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator around engine.
func NewCoordinator(engine *derivation.Engine, logger *slog.Logger) (*Coordinator, error) {
	if engine == nil {
		return nil, fmt.Errorf("aggregate: derivation engine is required: %w", apperr.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{engine: engine, logger: logger}, nil
}

// Aggregate returns the aggregate record for docs.
func (c *Coordinator) Aggregate(docs []frontmatter.Record, s *schema.Schema) (frontmatter.Record, error) {
	out, err := c.AggregateDetailed(docs, s)
	if err != nil {
		return frontmatter.Record{}, err
	}
	return out.Record, nil
}

// AggregateDetailed is Aggregate plus the engine's report of which strategy
// ran and which rules were skipped.
func (c *Coordinator) AggregateDetailed(docs []frontmatter.Record, s *schema.Schema) (derivation.Outcome, error) {
	if s == nil {
		return derivation.Outcome{}, fmt.Errorf("aggregate: schema is required: %w", apperr.ErrConfiguration)
	}
	rules, err := s.DerivedRules()
	if err != nil {
		return derivation.Outcome{}, err
	}

	var out derivation.Outcome
	if len(rules) > 0 {
		out, err = c.engine.Aggregate(docs, s)
	} else {
		out, err = derivation.AggregateWithoutRules(docs, s)
	}
	if err != nil {
		return derivation.Outcome{}, err
	}

	c.logger.Debug("aggregate: done",
		slog.String("strategy", string(out.Strategy)),
		slog.Int("documents", len(docs)),
		slog.Int("rules", len(rules)),
		slog.Int("rule_errors", len(out.RuleErrors)))
	return out, nil
}
