// Package catalog is the in-memory tabular model shared by the cleaning,
// deduplication and matching stages: an ordered list of rows with named
// string values.
package catalog

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// Row maps column names to raw cell values.
type Row map[string]string

// Catalog is an ordered collection of source observations.
type Catalog struct {
	Name    string
	Columns []string
	Rows    []Row
}

// New returns an empty catalog with the given column order.
func New(name string, columns ...string) *Catalog {
	return &Catalog{Name: name, Columns: slices.Clone(columns)}
}

// Len returns the number of rows.
func (c *Catalog) Len() int { return len(c.Rows) }

// Append adds a row from positional values matching Columns.
func (c *Catalog) Append(values ...string) error {
	if len(values) != len(c.Columns) {
		return eris.Errorf("catalog %q: row has %d values, want %d", c.Name, len(values), len(c.Columns))
	}
	r := make(Row, len(values))
	for i, col := range c.Columns {
		r[col] = values[i]
	}
	c.Rows = append(c.Rows, r)
	return nil
}

// AppendRow adds an existing row. Columns the catalog does not know about are
// added to Columns in sorted order.
func (c *Catalog) AppendRow(r Row) {
	var extra []string
	for k := range r {
		if !c.Has(k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	c.Columns = append(c.Columns, extra...)
	c.Rows = append(c.Rows, r)
}

// Has reports whether col is an exact column name.
func (c *Catalog) Has(col string) bool {
	return slices.Contains(c.Columns, col)
}

// AddColumn appends col to Columns if absent.
func (c *Catalog) AddColumn(col string) {
	if !c.Has(col) {
		c.Columns = append(c.Columns, col)
	}
}

// Resolve returns the catalog's own spelling of col. An exact match wins;
// otherwise the first column equal under Unicode case folding is returned.
func (c *Catalog) Resolve(col string) (string, bool) {
	if c.Has(col) {
		return col, true
	}
	fold := cases.Fold()
	want := fold.String(col)
	for _, have := range c.Columns {
		if fold.String(have) == want {
			return have, true
		}
	}
	return "", false
}

// Require checks that every non-empty field resolves to a column and returns
// the resolved names in the same order. The first missing field is reported
// as a *SchemaError.
func (c *Catalog) Require(fields ...string) ([]string, error) {
	out := make([]string, len(fields))
	for i, f := range fields {
		if f == "" {
			continue
		}
		col, ok := c.Resolve(f)
		if !ok {
			return nil, &SchemaError{Catalog: c.Name, Field: f}
		}
		out[i] = col
	}
	return out, nil
}

// Float parses the value of col in row i as a float64.
func (c *Catalog) Float(i int, col string) (float64, error) {
	raw := strings.TrimSpace(c.Rows[i][col])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "catalog %q row %d: parse %s", c.Name, i, col)
	}
	return v, nil
}

// Subset returns a catalog holding the rows at indices, in that order. Rows
// are shared with c, not copied.
func (c *Catalog) Subset(indices []int) *Catalog {
	out := New(c.Name, c.Columns...)
	out.Rows = make([]Row, 0, len(indices))
	for _, i := range indices {
		out.Rows = append(out.Rows, c.Rows[i])
	}
	return out
}

// Clone deep-copies the catalog so callers may mutate rows freely.
func (c *Catalog) Clone() *Catalog {
	out := New(c.Name, c.Columns...)
	out.Rows = make([]Row, len(c.Rows))
	for i, r := range c.Rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}
