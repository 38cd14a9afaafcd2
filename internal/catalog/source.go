package catalog

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
)

// Schema names the columns the core algorithms read. ID and Rank are
// optional; RA and Dec are always required.
type Schema struct {
	RA   string
	Dec  string
	ID   string
	Rank string
}

// RowPolicy decides what happens to a row with a malformed required value.
type RowPolicy string

const (
	// PolicyAbort fails the whole call on the first malformed row.
	PolicyAbort RowPolicy = "abort"
	// PolicySkip drops the row and logs a warning.
	PolicySkip RowPolicy = "skip"
)

// ParseRowPolicy accepts "abort" (or "") and "skip".
func ParseRowPolicy(s string) (RowPolicy, error) {
	switch RowPolicy(strings.ToLower(s)) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", eris.Errorf("catalog: unknown row policy %q", s)
	}
}

// Source is a validated observation extracted from a catalog row.
type Source struct {
	Row  int // index into Catalog.Rows
	ID   string
	Pos  sky.Position
	Rank float64
}

// Extraction is the result of Sources.
type Extraction struct {
	Sources []Source
	Skipped []*MalformedInputError
}

// Sources checks the schema once, then extracts a Source per row in catalog
// order. Rows with a missing or non-finite RA, DEC or rank, or an empty ID
// when one is required, are malformed and handled per policy.
func (c *Catalog) Sources(s Schema, policy RowPolicy) (*Extraction, error) {
	if s.RA == "" || s.Dec == "" {
		return nil, eris.New("catalog: schema must name RA and DEC columns")
	}
	cols, err := c.Require(s.RA, s.Dec, s.ID, s.Rank)
	if err != nil {
		return nil, err
	}
	raCol, decCol, idCol, rankCol := cols[0], cols[1], cols[2], cols[3]

	out := &Extraction{Sources: make([]Source, 0, len(c.Rows))}
	for i, r := range c.Rows {
		src, bad := c.source(i, r, raCol, decCol, idCol, rankCol)
		if bad != nil {
			if policy == PolicySkip {
				zap.L().Warn("catalog: skipping malformed row",
					zap.String("catalog", c.Name),
					zap.Int("row", i),
					zap.String("field", bad.Field),
					zap.String("value", bad.Value),
				)
				out.Skipped = append(out.Skipped, bad)
				continue
			}
			return nil, bad
		}
		out.Sources = append(out.Sources, src)
	}
	return out, nil
}

func (c *Catalog) source(i int, r Row, raCol, decCol, idCol, rankCol string) (Source, *MalformedInputError) {
	ra, bad := c.finite(i, r, raCol)
	if bad != nil {
		return Source{}, bad
	}
	dec, bad := c.finite(i, r, decCol)
	if bad != nil {
		return Source{}, bad
	}
	src := Source{Row: i, Pos: sky.NewPosition(ra, dec)}
	if rankCol != "" {
		if src.Rank, bad = c.finite(i, r, rankCol); bad != nil {
			return Source{}, bad
		}
	}
	if idCol != "" {
		src.ID = strings.TrimSpace(r[idCol])
		if src.ID == "" {
			return Source{}, &MalformedInputError{Catalog: c.Name, Row: i, Field: idCol}
		}
	}
	return src, nil
}

func (c *Catalog) finite(i int, r Row, col string) (float64, *MalformedInputError) {
	raw := strings.TrimSpace(r[col])
	if raw == "" {
		return 0, &MalformedInputError{Catalog: c.Name, Row: i, Field: col}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &MalformedInputError{Catalog: c.Name, Row: i, Field: col, Value: raw}
	}
	return v, nil
}

// Positions returns the positions of srcs in order.
func Positions(srcs []Source) []sky.Position {
	out := make([]sky.Position, len(srcs))
	for i, s := range srcs {
		out[i] = s.Pos
	}
	return out
}
