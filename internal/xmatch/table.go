package xmatch

import (
	"strconv"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/model"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
)

// SeparationColumn is added to exported association rows.
const SeparationColumn = "SEP_ARCSEC"

// Association pairs one primary source with one secondary counterpart.
type Association struct {
	PrimaryID        string       `json:"primary_id"`
	PrimaryRow       int          `json:"primary_row"`
	SecondaryRow     int          `json:"secondary_row"`
	SecondaryPos     sky.Position `json:"-"`
	SeparationArcsec float64      `json:"separation_arcsec"`
}

// Table is the result of Match.
type Table struct {
	Tolerance    sky.Tolerance
	Primary      *catalog.Catalog
	Secondary    *catalog.Catalog
	IDColumn     string
	Associations []Association
	// Skipped counts malformed rows dropped under catalog.PolicySkip.
	Skipped int
}

// Len returns the number of associations.
func (t *Table) Len() int { return len(t.Associations) }

// PrimaryIDs returns the distinct primary identifiers in table order.
func (t *Table) PrimaryIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range t.Associations {
		if !seen[a.PrimaryID] {
			seen[a.PrimaryID] = true
			ids = append(ids, a.PrimaryID)
		}
	}
	return ids
}

// Catalog flattens the table into the secondary catalog's columns followed by
// the primary ID column and SEP_ARCSEC. Each association gets its own row
// copy so fanned-out secondaries can carry different tags. A secondary column
// with the same name as the ID column is overwritten by the tag.
func (t *Table) Catalog() *catalog.Catalog {
	out := catalog.New(t.Secondary.Name+"_counterparts", t.Secondary.Columns...)
	out.AddColumn(t.IDColumn)
	out.AddColumn(SeparationColumn)
	out.Rows = make([]catalog.Row, 0, len(t.Associations))

	for _, a := range t.Associations {
		src := t.Secondary.Rows[a.SecondaryRow]
		row := make(catalog.Row, len(src)+2)
		for k, v := range src {
			row[k] = v
		}
		row[t.IDColumn] = a.PrimaryID
		row[SeparationColumn] = strconv.FormatFloat(a.SeparationArcsec, 'f', 4, 64)
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Records converts the table to persisted association rows for runID.
func (t *Table) Records(runID string) []model.Association {
	out := make([]model.Association, len(t.Associations))
	for i, a := range t.Associations {
		out[i] = model.Association{
			RunID:            runID,
			Seq:              i,
			PrimaryID:        a.PrimaryID,
			PrimaryRow:       a.PrimaryRow,
			SecondaryRow:     a.SecondaryRow,
			RA:               a.SecondaryPos.RA(),
			Dec:              a.SecondaryPos.Dec(),
			SeparationArcsec: a.SeparationArcsec,
		}
	}
	return out
}
