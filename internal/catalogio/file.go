package catalogio

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
)

// Format is a catalog file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatSHP  Format = "shp"
)

// FormatOf picks a format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".shp":
		return FormatSHP, nil
	default:
		return "", eris.Errorf("catalogio: unsupported file type %q", filepath.Ext(path))
	}
}

// NameOf returns the catalog name for a file: its base name without extension.
func NameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads a catalog from path, choosing the reader by extension. XLSX
// files are read from their first sheet and shapefiles from their attribute
// table.
func Load(ctx context.Context, path string) (*catalog.Catalog, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	var cat *catalog.Catalog
	switch format {
	case FormatXLSX:
		cat, err = ReadXLSX(path, XLSXOptions{})
	case FormatSHP:
		cat, err = ReadShapefile(path)
	default:
		opts := CSVOptions{}
		if format == FormatTSV {
			opts.Delimiter = '\t'
		}
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "catalogio: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		cat, err = ReadCSV(ctx, f, NameOf(path), opts)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalogio: load %s", path)
	}

	zap.L().Info("catalogio: loaded catalog",
		zap.String("path", path),
		zap.String("catalog", cat.Name),
		zap.Int("columns", len(cat.Columns)),
		zap.Int("rows", cat.Len()),
	)
	return cat, nil
}

// Save writes cat to path, choosing the writer by extension.
func Save(path string, cat *catalog.Catalog) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatXLSX:
		return WriteXLSX(path, cat)
	case FormatSHP:
		return eris.New("catalogio: shapefiles need position columns, use WriteShapefile")
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "catalogio: create %s", path)
	}
	if format == FormatTSV {
		err = writeDelimited(f, cat, '\t')
	} else {
		err = WriteCSV(f, cat)
	}
	if err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "catalogio: close %s", path)
	}
	zap.L().Info("catalogio: saved catalog", zap.String("path", path), zap.Int("rows", cat.Len()))
	return nil
}
