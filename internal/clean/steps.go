package clean

import (
	"context"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/dedup"
)

// Stack concatenates parts vertically. Columns are the union of every part's
// columns in first-seen order; rows are deep-copied.
func Stack(name string, parts ...*catalog.Catalog) *catalog.Catalog {
	out := catalog.New(name)
	for _, p := range parts {
		for _, col := range p.Columns {
			out.AddColumn(col)
		}
	}
	for _, p := range parts {
		out.Rows = append(out.Rows, p.Clone().Rows...)
	}
	zap.L().Info("clean: stacked catalogs",
		zap.String("catalog", name),
		zap.Int("parts", len(parts)),
		zap.Int("rows", out.Len()),
	)
	return out
}

// IsMissing reports whether a raw cell holds no usable value.
func IsMissing(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, m := range []string{"nan", "null", "none", "na"} {
		if strings.EqualFold(v, m) {
			return true
		}
	}
	return false
}

// FlagMissing counts cells with missing values in cols, or in every column
// when cols is empty, and logs a warning when any are present. With drop set,
// rows holding a missing value in those columns are removed. Columns the
// catalog lacks are ignored here; later steps report them.
func FlagMissing(drop bool, cols ...string) Step {
	return NewStep("flag_missing", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		checked := cat.Columns
		if len(cols) > 0 {
			checked = make([]string, 0, len(cols))
			for _, c := range cols {
				if have, ok := cat.Resolve(c); ok {
					checked = append(checked, have)
				}
			}
		}

		cells := 0
		keep := make([]int, 0, cat.Len())
		for i, r := range cat.Rows {
			bad := 0
			for _, col := range checked {
				if IsMissing(r[col]) {
					bad++
				}
			}
			cells += bad
			if bad == 0 || !drop {
				keep = append(keep, i)
			}
		}
		if cells > 0 {
			zap.L().Warn("clean: missing values",
				zap.String("catalog", cat.Name),
				zap.Int("cells", cells),
				zap.Int("rows_dropped", cat.Len()-len(keep)),
			)
		}
		if !drop {
			return cat, nil
		}
		return cat.Subset(keep), nil
	})
}

// WrapLongitude rewrites longitudes above 180 degrees as negative angles so
// a region straddling 0 is contiguous.
func WrapLongitude(col string) Step {
	return NewStep("wrap_longitude", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		cols, err := cat.Require(col)
		if err != nil {
			return nil, err
		}
		c := cols[0]
		wrapped := 0
		for i := range cat.Rows {
			v, err := number(cat, i, c)
			if err != nil {
				return nil, err
			}
			if v > 180 {
				cat.Rows[i][c] = formatFloat(v - 360)
				wrapped++
			}
		}
		zap.L().Debug("clean: wrapped longitudes", zap.String("column", c), zap.Int("rows", wrapped))
		return cat, nil
	})
}

// Region is the survey footprint: |lon| < LonMax and |lat| > LatCut.
type Region struct {
	LonColumn string  `yaml:"lon_column"`
	LatColumn string  `yaml:"lat_column"`
	LonMax    float64 `yaml:"lon_max"`
	LatCut    float64 `yaml:"lat_cut"`
}

// Contains reports whether (lon, lat) lies inside the region.
func (r Region) Contains(lon, lat float64) bool {
	return math.Abs(lon) < r.LonMax && math.Abs(lat) > r.LatCut
}

// TrimRegion keeps rows inside r. Longitudes must already be wrapped.
func TrimRegion(r Region) Step {
	return NewStep("trim_region", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		cols, err := cat.Require(r.LonColumn, r.LatColumn)
		if err != nil {
			return nil, err
		}
		keep := make([]int, 0, cat.Len())
		for i := range cat.Rows {
			lon, err := number(cat, i, cols[0])
			if err != nil {
				return nil, err
			}
			lat, err := number(cat, i, cols[1])
			if err != nil {
				return nil, err
			}
			if r.Contains(lon, lat) {
				keep = append(keep, i)
			}
		}
		return cat.Subset(keep), nil
	})
}

// Rename renames columns by mapping. Source columns that are absent are
// ignored. Renaming onto a different existing column is an error.
func Rename(mapping map[string]string) Step {
	return NewStep("rename", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		from := make([]string, 0, len(mapping))
		for k := range mapping {
			from = append(from, k)
		}
		slices.Sort(from)

		renames := make(map[string]string, len(mapping))
		targets := make(map[string]string, len(mapping))
		for _, old := range from {
			have, ok := cat.Resolve(old)
			if !ok {
				continue
			}
			to := mapping[old]
			if have == to {
				continue
			}
			if prev, dup := targets[to]; dup {
				return nil, eris.Errorf("clean: rename %q and %q both to %q", prev, have, to)
			}
			renames[have] = to
			targets[to] = have
		}
		for have, to := range renames {
			if _, moving := renames[to]; cat.Has(to) && !moving {
				return nil, eris.Errorf("clean: rename %q to %q: column already exists", have, to)
			}
		}

		for i, col := range cat.Columns {
			if to, ok := renames[col]; ok {
				cat.Columns[i] = to
			}
		}
		for _, r := range cat.Rows {
			moved := make(map[string]string, len(renames))
			for old, to := range renames {
				if v, ok := r[old]; ok {
					moved[to] = v
					delete(r, old)
				}
			}
			for k, v := range moved {
				r[k] = v
			}
		}
		return cat, nil
	})
}

// Drop removes columns. Every named column must exist.
func Drop(cols ...string) Step {
	return NewStep("drop", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		resolved, err := cat.Require(cols...)
		if err != nil {
			return nil, err
		}
		cat.Columns = slices.DeleteFunc(cat.Columns, func(c string) bool {
			return slices.Contains(resolved, c)
		})
		for _, r := range cat.Rows {
			for _, c := range resolved {
				delete(r, c)
			}
		}
		return cat, nil
	})
}

// PrefixIDs prepends prefix to every value of col, so 210 becomes CX210.
func PrefixIDs(col, prefix string) Step {
	return NewStep("prefix_ids", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		cols, err := cat.Require(col)
		if err != nil {
			return nil, err
		}
		for i, r := range cat.Rows {
			v := strings.TrimSpace(r[cols[0]])
			if v == "" {
				return nil, &catalog.MalformedInputError{Catalog: cat.Name, Row: i, Field: cols[0]}
			}
			r[cols[0]] = prefix + v
		}
		return cat, nil
	})
}

// QuadratureError replaces the value of col with sqrt(v² + Σ terms²).
func QuadratureError(col string, terms ...float64) Step {
	var extra float64
	for _, t := range terms {
		extra += t * t
	}
	return NewStep("quadrature_error", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		cols, err := cat.Require(col)
		if err != nil {
			return nil, err
		}
		for i, r := range cat.Rows {
			v, err := number(cat, i, cols[0])
			if err != nil {
				return nil, err
			}
			r[cols[0]] = formatFloat(math.Sqrt(v*v + extra))
		}
		return cat, nil
	})
}

// Deduplicate collapses near-duplicate rows with dedup.Deduplicate.
func Deduplicate(opts dedup.Options) Step {
	return NewStep("deduplicate", func(_ context.Context, cat *catalog.Catalog) (*catalog.Catalog, error) {
		out, rep, err := dedup.Deduplicate(cat, opts)
		if err != nil {
			return nil, err
		}
		zap.L().Info("clean: removed duplicate observations",
			zap.String("catalog", cat.Name),
			zap.Int("input", rep.Input),
			zap.Int("accepted", rep.Accepted),
			zap.Int("duplicates", rep.Duplicates),
			zap.Int("skipped", rep.Skipped),
		)
		return out, nil
	})
}

func number(cat *catalog.Catalog, i int, col string) (float64, error) {
	raw := cat.Rows[i][col]
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &catalog.MalformedInputError{Catalog: cat.Name, Row: i, Field: col, Value: raw}
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
