package catalogio

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func sample(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New("galex_CLEAN", "GLX_RA", "GLX_DEC", "NUV_MAG")
	require.NoError(t, c.Append("266.1", "-29.0", "20.5"))
	require.NoError(t, c.Append("266.2", "-29.1", ""))
	require.NoError(t, c.Append("266.3", "-29.2", "has,comma"))
	return c
}

func TestStreamCSV_Options(t *testing.T) {
	input := "# comment\n a | b \n1|2\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: '|',
		Comment:   '#',
		TrimSpace: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\n1\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadCSV(t *testing.T) {
	input := ",ra,dec\n0,10.5,-29\n1,11.5\n"
	cat, err := ReadCSV(context.Background(), strings.NewReader(input), "galex", CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, "galex", cat.Name)
	assert.Equal(t, []string{"column_1", "ra", "dec"}, cat.Columns)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, catalog.Row{"column_1": "1", "ra": "11.5", "dec": ""}, cat.Rows[1])
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), "empty", CSVOptions{})
	require.Error(t, err)

	_, err = ReadCSV(context.Background(), strings.NewReader("a,a\n1,2\n"), "dup", CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")

	_, err = ReadCSV(context.Background(), strings.NewReader("a,b\n1,2,3\n4,5\n"), "wide", CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")

	_, err = ReadCSV(context.Background(), strings.NewReader("a,b\n\"1,2\n"), "quote", CSVOptions{})
	require.Error(t, err)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	want := sample(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, want))
	assert.True(t, strings.HasPrefix(buf.String(), "GLX_RA,GLX_DEC,NUV_MAG\n"))

	got, err := ReadCSV(context.Background(), &buf, want.Name, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestXLSX_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	first := sample(t)
	second := catalog.New("a_very_long_catalog_name_that_exceeds_the_limit", "GBS_NAME")
	require.NoError(t, second.Append("CX1"))

	require.NoError(t, WriteXLSX(path, first, second))

	got, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Columns, got.Columns)
	assert.Equal(t, first.Rows, got.Rows)

	got, err = ReadXLSX(path, XLSXOptions{SheetIndex: 1})
	require.NoError(t, err)
	assert.Len(t, got.Name, maxSheetName)
	assert.Equal(t, []string{"CX1"}, []string{got.Rows[0]["GBS_NAME"]})

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "nope"})
	require.Error(t, err)
	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)

	require.Error(t, WriteXLSX(path))
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	first := sheetName("galex", 0, used)
	used[first] = true
	second := sheetName("galex", 1, used)
	used[second] = true
	assert.Equal(t, "galex", first)
	assert.Equal(t, "galex_2", second)
	assert.Equal(t, "galex_3", sheetName("galex", 2, used))
	assert.Equal(t, "Sheet4", sheetName("", 3, used))

	long := "chandra_GBS_CLEAN_with_quadrature_errors"
	used[long[:maxSheetName]] = true
	got := sheetName(long, 4, used)
	assert.Len(t, got, maxSheetName)
	assert.Equal(t, "_2", got[len(got)-2:])
}

func TestReadXLSX_ShortRows(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("chandra")
	require.NoError(t, err)
	addRow(sheet, []string{"CX", "RAJ2000", "DEJ2000"})
	addRow(sheet, []string{"210"})
	path := filepath.Join(t.TempDir(), "in.xlsx")
	require.NoError(t, f.Save(path))

	cat, err := ReadXLSX(path, XLSXOptions{SheetName: "chandra"})
	require.NoError(t, err)
	assert.Equal(t, "chandra", cat.Name)
	assert.Equal(t, catalog.Row{"CX": "210", "RAJ2000": "", "DEJ2000": ""}, cat.Rows[0])
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{
		"a.csv":       FormatCSV,
		"dir/B.CSV":   FormatCSV,
		"c.tsv":       FormatTSV,
		"d.tab":       FormatTSV,
		"e.xlsx":      FormatXLSX,
		"g.shp":       FormatSHP,
		"f.tar/x.csv": FormatCSV,
	} {
		got, err := FormatOf(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatOf("chandra.fits")
	require.Error(t, err)
	assert.Equal(t, "galex_CLEAN", NameOf("/data/galex_CLEAN.csv"))
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	want := sample(t)

	for _, name := range []string{"galex_CLEAN.csv", "galex_CLEAN.tsv", "galex_CLEAN.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, want))

			got, err := Load(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, "galex_CLEAN", got.Name)
			assert.Equal(t, want.Columns, got.Columns)
			assert.Equal(t, want.Rows, got.Rows)
		})
	}

	tsv, err := os.ReadFile(filepath.Join(dir, "galex_CLEAN.tsv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(tsv), "GLX_RA\tGLX_DEC\tNUV_MAG\n"))

	_, err = Load(context.Background(), filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	require.Error(t, Save(filepath.Join(dir, "x.fits"), want))
}

func TestShapefile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "galex_CLEAN.shp")
	want := sample(t)

	require.NoError(t, WriteShapefile(path, want, "glx_ra", "glx_dec"))
	for _, ext := range []string{".shx", ".dbf"} {
		_, err := os.Stat(strings.TrimSuffix(path, ".shp") + ext)
		require.NoError(t, err, ext)
	}

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "galex_CLEAN", got.Name)
	assert.Equal(t, want.Columns, got.Columns)
	assert.Equal(t, want.Rows, got.Rows)

	require.Error(t, Save(path, want))
}

func TestWriteShapefile_Errors(t *testing.T) {
	dir := t.TempDir()
	c := sample(t)

	err := WriteShapefile(filepath.Join(dir, "a.shp"), c, "RA", "GLX_DEC")
	require.ErrorIs(t, err, catalog.ErrSchema)

	c.Rows[1]["GLX_DEC"] = "south"
	err = WriteShapefile(filepath.Join(dir, "b.shp"), c, "GLX_RA", "GLX_DEC")
	require.ErrorIs(t, err, catalog.ErrMalformedInput)
}

func TestFieldName(t *testing.T) {
	used := map[string]bool{}
	take := func(col string, j int) string {
		name := fieldName(col, j, used)
		used[name] = true
		return name
	}
	assert.Equal(t, "GLX_RA", take("GLX_RA", 0))
	assert.Equal(t, "DIST_2_FOV", take("DIST_2_FOV", 1))
	assert.Equal(t, "DIST_2_F_2", take("DIST_2_FOV_ERR", 2))
	assert.Equal(t, "FIELD4", take("", 3))
}
