// Package xmatch associates sources in a secondary catalog with every primary
// source they lie within a positional tolerance of.
package xmatch

import (
	"context"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
)

// Options configures Match.
type Options struct {
	// Primary must name RA, DEC and ID columns; Secondary RA and DEC.
	Primary   catalog.Schema
	Secondary catalog.Schema

	// Tolerance is in arcseconds unless ToleranceDegrees is set. Zero,
	// negative and non-finite values are rejected.
	Tolerance        float64
	ToleranceDegrees bool

	Policy catalog.RowPolicy
	Index  sky.IndexKind
	Metric sky.Metric

	// Workers bounds the number of primary rows queried concurrently.
	// Zero means GOMAXPROCS; one runs sequentially.
	Workers int
}

// tolerance resolves the configured tolerance.
func (o Options) tolerance() (sky.Tolerance, error) {
	return sky.NewTolerance(o.Tolerance, o.ToleranceDegrees)
}

// Match runs the proximity join. Both schemas are checked before any row is
// read. The association table is ordered by primary row, then by secondary
// row within each primary. Primary sources with no counterpart contribute no
// rows; a secondary source near several primaries appears once per primary.
func Match(ctx context.Context, primary, secondary *catalog.Catalog, opts Options) (*Table, error) {
	tol, err := opts.tolerance()
	if err != nil {
		return nil, err
	}
	if opts.Primary.ID == "" {
		return nil, eris.New("xmatch: primary schema must name an ID column")
	}
	if _, err := primary.Require(opts.Primary.RA, opts.Primary.Dec, opts.Primary.ID); err != nil {
		return nil, err
	}
	if _, err := secondary.Require(opts.Secondary.RA, opts.Secondary.Dec); err != nil {
		return nil, err
	}

	prim, err := primary.Sources(catalog.Schema{RA: opts.Primary.RA, Dec: opts.Primary.Dec, ID: opts.Primary.ID}, opts.Policy)
	if err != nil {
		return nil, err
	}
	sec, err := secondary.Sources(catalog.Schema{RA: opts.Secondary.RA, Dec: opts.Secondary.Dec}, opts.Policy)
	if err != nil {
		return nil, err
	}

	metric := opts.Metric
	if metric == nil {
		metric = sky.Planar
	}
	idx, err := sky.NewIndex(opts.Index, tol, metric)
	if err != nil {
		return nil, err
	}
	for i, s := range sec.Sources {
		idx.Insert(i, s.Pos)
	}

	groups, err := query(ctx, prim.Sources, sec.Sources, idx, metric, opts.Workers)
	if err != nil {
		return nil, err
	}

	t := &Table{
		Tolerance: tol,
		Primary:   primary,
		Secondary: secondary,
		IDColumn:  opts.Primary.ID,
		Skipped:   len(prim.Skipped) + len(sec.Skipped),
	}
	matched := 0
	for _, g := range groups {
		if len(g) > 0 {
			matched++
		}
		t.Associations = append(t.Associations, g...)
	}

	zap.L().Debug("xmatch: complete",
		zap.String("primary", primary.Name),
		zap.String("secondary", secondary.Name),
		zap.Int("primary_rows", len(prim.Sources)),
		zap.Int("secondary_rows", len(sec.Sources)),
		zap.Int("primary_matched", matched),
		zap.Int("associations", len(t.Associations)),
		zap.Int("skipped", t.Skipped),
		zap.Float64("tolerance_arcsec", tol.Arcsec()),
	)
	return t, nil
}

// query finds the counterparts of each primary source. Each primary is an
// independent unit of work against the read-only index; results land in the
// slot of their primary so ordering does not depend on scheduling.
func query(ctx context.Context, prim, sec []catalog.Source, idx sky.Index, metric sky.Metric, workers int) ([][]Association, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	groups := make([][]Association, len(prim))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range prim {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "xmatch: cancelled")
			}
			hits := idx.Within(p.Pos)
			if len(hits) == 0 {
				return nil
			}
			out := make([]Association, 0, len(hits))
			for _, h := range hits {
				s := sec[h]
				out = append(out, Association{
					PrimaryID:        p.ID,
					PrimaryRow:       p.Row,
					SecondaryRow:     s.Row,
					SecondaryPos:     s.Pos,
					SeparationArcsec: metric.Separation(p.Pos, s.Pos),
				})
			}
			groups[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}
