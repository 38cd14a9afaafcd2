// Package dedup collapses repeat detections of the same physical source into
// one canonical row.
//
// Rows are ranked ascending by a rank column (lower is more reliable, e.g.
// distance from the field-of-view centre) with a stable sort, then folded
// into an accepted set: a row is kept only if no already-accepted row lies
// strictly within the tolerance. A candidate is compared against every
// accepted representative and never against discarded rows, so a chain of
// detections A-B-C where only neighbours are close keeps A and C.
package dedup

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
)

// DefaultToleranceArcsec is the GALEX near-duplicate radius.
const DefaultToleranceArcsec = 2.5

// Options configures Deduplicate.
type Options struct {
	// Schema names the RA, DEC and rank columns. An empty Rank keeps input
	// order. Schema.ID is ignored.
	Schema    catalog.Schema
	Tolerance sky.Tolerance
	Policy    catalog.RowPolicy
	Index     sky.IndexKind
	Metric    sky.Metric
}

// Report summarises a Deduplicate call.
type Report struct {
	Input      int `json:"input"`
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Deduplicate returns the subset of cat that survives near-duplicate
// collapse, in acceptance order. The returned rows are the input rows
// themselves; none are copied or synthesized. Required columns are checked
// even when cat has no rows.
func Deduplicate(cat *catalog.Catalog, opts Options) (*catalog.Catalog, Report, error) {
	tol, err := sky.NewTolerance(opts.Tolerance.Arcsec(), false)
	if err != nil {
		return nil, Report{}, err
	}
	schema := opts.Schema
	schema.ID = ""
	ext, err := cat.Sources(schema, opts.Policy)
	if err != nil {
		return nil, Report{}, err
	}

	idx, err := sky.NewIndex(opts.Index, tol, opts.Metric)
	if err != nil {
		return nil, Report{}, err
	}

	ranked := ext.Sources
	if schema.Rank != "" {
		ranked = slices.Clone(ext.Sources)
		slices.SortStableFunc(ranked, func(a, b catalog.Source) int {
			return cmp.Compare(a.Rank, b.Rank)
		})
	}

	accepted := fold(ranked, idx)

	rows := make([]int, len(accepted))
	for i, s := range accepted {
		rows[i] = s.Row
	}

	rep := Report{
		Input:      cat.Len(),
		Accepted:   len(accepted),
		Duplicates: len(ranked) - len(accepted),
		Skipped:    len(ext.Skipped),
	}
	zap.L().Debug("dedup: complete",
		zap.String("catalog", cat.Name),
		zap.Int("input", rep.Input),
		zap.Int("accepted", rep.Accepted),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("skipped", rep.Skipped),
		zap.Float64("tolerance_arcsec", tol.Arcsec()),
		zap.String("index", string(opts.Index)),
	)
	return cat.Subset(rows), rep, nil
}

// fold walks ranked in order and accepts every source with no accepted
// neighbour inside the index tolerance. idx must be empty.
func fold(ranked []catalog.Source, idx sky.Index) []catalog.Source {
	accepted := make([]catalog.Source, 0, len(ranked))
	for _, s := range ranked {
		if idx.Any(s.Pos) {
			continue
		}
		idx.Insert(len(accepted), s.Pos)
		accepted = append(accepted, s)
	}
	return accepted
}
