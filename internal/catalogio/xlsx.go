package catalogio

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// XLSXOptions selects the sheet to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads one sheet as a catalog. The first row is the header and the
// catalog is named after the sheet. Trailing empty cells dropped by the
// writer are restored as empty values.
func ReadXLSX(path string, opts XLSXOptions) (*catalog.Catalog, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: sheet %q has no header row", sheet.Name)
	}

	cols, err := headerColumns(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}
	cat := catalog.New(sheet.Name, cols...)
	for i, row := range sheet.Rows[1:] {
		if err := cat.Append(fitWidth(rowToStrings(row), len(cols))...); err != nil {
			return nil, eris.Wrapf(err, "xlsx: sheet %q row %d", sheet.Name, i+2)
		}
	}
	return cat, nil
}

// WriteXLSX writes each catalog to its own sheet, named after the catalog.
func WriteXLSX(path string, cats ...*catalog.Catalog) error {
	if len(cats) == 0 {
		return eris.New("xlsx: no catalogs to write")
	}
	f := xlsx.NewFile()
	used := make(map[string]bool, len(cats))
	for i, cat := range cats {
		name := sheetName(cat.Name, i, used)
		used[name] = true
		sheet, err := f.AddSheet(name)
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %q", name)
		}
		addRow(sheet, cat.Columns)
		values := make([]string, len(cat.Columns))
		for _, r := range cat.Rows {
			for j, col := range cat.Columns {
				values[j] = r[col]
			}
			addRow(sheet, values)
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// sheetName truncates name to the XLSX limit and disambiguates repeats.
func sheetName(name string, i int, used map[string]bool) string {
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		name = base + suffix
	}
	return name
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
