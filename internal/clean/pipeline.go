// Package clean turns raw instrument exports into the normalized catalogs the
// dedup and xmatch stages consume.
package clean

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
)

// Step is one transformation in a cleaning pipeline. Apply may modify cat in
// place and return it, or return a different catalog.
type Step interface {
	Name() string
	Apply(ctx context.Context, cat *catalog.Catalog) (*catalog.Catalog, error)
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, cat *catalog.Catalog) (*catalog.Catalog, error)
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Apply(ctx context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
	return s.fn(ctx, cat)
}

// NewStep adapts a function to the Step interface.
func NewStep(name string, fn func(ctx context.Context, cat *catalog.Catalog) (*catalog.Catalog, error)) Step {
	return stepFunc{name: name, fn: fn}
}

// StepResult records the row counts around one step.
type StepResult struct {
	Step       string        `json:"step" yaml:"step"`
	RowsBefore int           `json:"rows_before" yaml:"rows_before"`
	RowsAfter  int           `json:"rows_after" yaml:"rows_after"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Pipeline runs steps in order.
type Pipeline struct {
	Name  string
	Steps []Step
}

// Run applies every step to a deep copy of cat. The input catalog is never
// modified. Execution stops at the first failing step.
func (p *Pipeline) Run(ctx context.Context, cat *catalog.Catalog) (*catalog.Catalog, []StepResult, error) {
	log := zap.L().With(zap.String("component", "clean."+p.Name))

	cur := cat.Clone()
	results := make([]StepResult, 0, len(p.Steps))
	for _, s := range p.Steps {
		if err := ctx.Err(); err != nil {
			return nil, results, eris.Wrapf(err, "clean: %s cancelled before %s", p.Name, s.Name())
		}
		start := time.Now()
		before := cur.Len()
		next, err := s.Apply(ctx, cur)
		if err != nil {
			return nil, results, eris.Wrapf(err, "clean: %s step %s", p.Name, s.Name())
		}
		cur = next
		res := StepResult{Step: s.Name(), RowsBefore: before, RowsAfter: cur.Len(), Elapsed: time.Since(start)}
		results = append(results, res)
		log.Info("step complete",
			zap.String("step", res.Step),
			zap.Int("rows_before", res.RowsBefore),
			zap.Int("rows_after", res.RowsAfter),
			zap.Duration("elapsed", res.Elapsed),
		)
	}
	return cur, results, nil
}
