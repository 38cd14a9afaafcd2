package catalogio

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
)

const (
	// dBase III limits.
	maxFieldName  = 10
	maxFieldWidth = 254
)

// WriteShapefile writes cat as a POINT shapefile with X=RA and Y=Dec in
// degrees. Every column becomes a character attribute; names longer than the
// dBase limit are truncated and disambiguated. The .shx and .dbf companions
// are written next to path.
func WriteShapefile(path string, cat *catalog.Catalog, raCol, decCol string) error {
	cols, err := cat.Require(raCol, decCol)
	if err != nil {
		return err
	}

	points := make([]shp.Point, cat.Len())
	for i := range cat.Rows {
		ra, err := cat.Float(i, cols[0])
		if err != nil {
			return &catalog.MalformedInputError{Catalog: cat.Name, Row: i, Field: cols[0], Value: cat.Rows[i][cols[0]]}
		}
		dec, err := cat.Float(i, cols[1])
		if err != nil {
			return &catalog.MalformedInputError{Catalog: cat.Name, Row: i, Field: cols[1], Value: cat.Rows[i][cols[1]]}
		}
		points[i] = shp.Point{X: ra, Y: dec}
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %s", path)
	}

	if err := w.SetFields(dbfFields(cat)); err != nil {
		w.Close()
		return eris.Wrap(err, "shapefile: set fields")
	}
	for i := range points {
		n := int(w.Write(&points[i]))
		for j, col := range cat.Columns {
			if err := w.WriteAttribute(n, j, cat.Rows[i][col]); err != nil {
				w.Close()
				return eris.Wrapf(err, "shapefile: row %d attribute %s", i, col)
			}
		}
	}
	w.Close()

	zap.L().Info("catalogio: saved shapefile", zap.String("path", path), zap.Int("points", len(points)))
	return nil
}

// ReadShapefile reads the attribute table of a shapefile as a catalog.
// Geometries are ignored; positions are expected among the attributes.
func ReadShapefile(path string) (*catalog.Catalog, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = r.Close() }()

	fields := r.Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = strings.TrimRight(f.String(), "\x00")
	}
	cols, err = headerColumns(cols)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(NameOf(path), cols...)
	values := make([]string, len(cols))
	for r.Next() {
		for i := range cols {
			values[i] = strings.TrimSpace(strings.TrimRight(r.Attribute(i), "\x00"))
		}
		if err := cat.Append(values...); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func dbfFields(cat *catalog.Catalog) []shp.Field {
	used := make(map[string]bool, len(cat.Columns))
	fields := make([]shp.Field, len(cat.Columns))
	for j, col := range cat.Columns {
		width := 1
		for _, r := range cat.Rows {
			width = max(width, len(r[col]))
		}
		name := fieldName(col, j, used)
		used[name] = true
		fields[j] = shp.StringField(name, uint8(min(width, maxFieldWidth)))
	}
	return fields
}

// fieldName truncates col to the dBase name limit and disambiguates repeats.
func fieldName(col string, j int, used map[string]bool) string {
	name := col
	if name == "" {
		name = fmt.Sprintf("FIELD%d", j+1)
	}
	if len(name) > maxFieldName {
		name = name[:maxFieldName]
	}
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > maxFieldName {
			base = base[:maxFieldName-len(suffix)]
		}
		name = base + suffix
	}
	return name
}
