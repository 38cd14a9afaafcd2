package clean

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/dedup"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
)

func build(t *testing.T, name string, cols []string, rows ...[]string) *catalog.Catalog {
	t.Helper()
	c := catalog.New(name, cols...)
	for _, r := range rows {
		require.NoError(t, c.Append(r...))
	}
	return c
}

func apply(t *testing.T, s Step, c *catalog.Catalog) *catalog.Catalog {
	t.Helper()
	out, err := s.Apply(context.Background(), c)
	require.NoError(t, err)
	return out
}

func column(c *catalog.Catalog, col string) []string {
	out := make([]string, 0, c.Len())
	for _, r := range c.Rows {
		out = append(out, r[col])
	}
	return out
}

func TestStack(t *testing.T) {
	right := build(t, "right", []string{"ra", "dec"}, []string{"1", "2"})
	left := build(t, "left", []string{"ra", "dec", "glon"}, []string{"3", "4", "359"})

	out := Stack("galex", right, left)
	assert.Equal(t, "galex", out.Name)
	assert.Equal(t, []string{"ra", "dec", "glon"}, out.Columns)
	assert.Equal(t, []string{"1", "3"}, column(out, "ra"))

	out.Rows[0]["ra"] = "changed"
	assert.Equal(t, "1", right.Rows[0]["ra"])
}

func TestIsMissing(t *testing.T) {
	for _, v := range []string{"", "  ", "NaN", "nan", "NULL", "None", "NA"} {
		assert.True(t, IsMissing(v), v)
	}
	for _, v := range []string{"0", "nana", "-1.5", "x"} {
		assert.False(t, IsMissing(v), v)
	}
}

func TestFlagMissing(t *testing.T) {
	c := build(t, "g", []string{"a", "b"},
		[]string{"1", "2"},
		[]string{"", "2"},
		[]string{"3", "NaN"},
	)
	assert.Equal(t, 3, apply(t, FlagMissing(false), c.Clone()).Len())
	out := apply(t, FlagMissing(true), c.Clone())
	assert.Equal(t, []string{"1"}, column(out, "a"))
}

func TestFlagMissing_Columns(t *testing.T) {
	c := build(t, "g", []string{"ra", "dec", "notes"},
		[]string{"1", "2", "ok"},
		[]string{"3", "4", ""},
		[]string{"5", "", "ok"},
	)
	out := apply(t, FlagMissing(true, "RA", "dec", "absent"), c.Clone())
	assert.Equal(t, []string{"1", "3"}, column(out, "ra"))

	out = apply(t, FlagMissing(true, "notes"), c.Clone())
	assert.Equal(t, []string{"1", "5"}, column(out, "ra"))
}

func TestWrapLongitude(t *testing.T) {
	c := build(t, "g", []string{"glon"}, []string{"359.5"}, []string{"2.5"}, []string{"180"}, []string{"181"})
	out := apply(t, WrapLongitude("glon"), c)
	assert.Equal(t, []string{"-0.5", "2.5", "180", "-179"}, column(out, "glon"))

	bad := build(t, "g", []string{"glon"}, []string{"x"})
	_, err := WrapLongitude("glon").Apply(context.Background(), bad)
	require.ErrorIs(t, err, catalog.ErrMalformedInput)

	_, err = WrapLongitude("l").Apply(context.Background(), bad)
	require.ErrorIs(t, err, catalog.ErrSchema)
}

func TestTrimRegion(t *testing.T) {
	c := build(t, "g", []string{"id", "glon", "glat"},
		[]string{"in-north", "1.0", "1.5"},
		[]string{"in-south", "-3.0", "-0.9"},
		[]string{"plane", "0.0", "0.5"},
		[]string{"lon-edge", "3.1", "1.0"},
		[]string{"lat-edge", "0.0", "0.83"},
		[]string{"outside", "5.0", "2.0"},
	)
	out := apply(t, TrimRegion(DefaultRegion), c)
	assert.Equal(t, []string{"in-north", "in-south"}, column(out, "id"))
}

func TestRename(t *testing.T) {
	c := build(t, "g", []string{"ra", "dec", "nuv_mag"}, []string{"1", "2", "20"})
	out := apply(t, Rename(GALEXRenames), c)
	assert.Equal(t, []string{"GLX_RA", "GLX_DEC", "NUV_MAG"}, out.Columns)
	assert.Equal(t, catalog.Row{"GLX_RA": "1", "GLX_DEC": "2", "NUV_MAG": "20"}, out.Rows[0])

	swap := build(t, "g", []string{"a", "b"}, []string{"1", "2"})
	out = apply(t, Rename(map[string]string{"a": "b", "b": "a"}), swap)
	assert.Equal(t, []string{"b", "a"}, out.Columns)
	assert.Equal(t, catalog.Row{"a": "2", "b": "1"}, out.Rows[0])

	clash := build(t, "g", []string{"a", "b"}, []string{"1", "2"})
	_, err := Rename(map[string]string{"a": "b"}).Apply(context.Background(), clash)
	require.Error(t, err)

	_, err = Rename(map[string]string{"a": "c", "b": "c"}).Apply(context.Background(), clash)
	require.Error(t, err)
}

func TestDrop(t *testing.T) {
	c := build(t, "x", []string{"_RAJ2000", "X_RAJ2000", "_DEJ2000"}, []string{"1", "2", "3"})
	out := apply(t, Drop("_RAJ2000", "_DEJ2000"), c)
	assert.Equal(t, []string{"X_RAJ2000"}, out.Columns)
	assert.Equal(t, catalog.Row{"X_RAJ2000": "2"}, out.Rows[0])

	_, err := Drop("missing").Apply(context.Background(), out)
	require.ErrorIs(t, err, catalog.ErrSchema)
}

func TestPrefixIDs(t *testing.T) {
	c := build(t, "x", []string{"GBS_NAME"}, []string{"210"}, []string{" 1092 "})
	out := apply(t, PrefixIDs("GBS_NAME", "CX"), c)
	assert.Equal(t, []string{"CX210", "CX1092"}, column(out, "GBS_NAME"))

	_, err := PrefixIDs("GBS_NAME", "CX").Apply(context.Background(), build(t, "x", []string{"GBS_NAME"}, []string{""}))
	require.ErrorIs(t, err, catalog.ErrMalformedInput)
}

func TestQuadratureError(t *testing.T) {
	c := build(t, "x", []string{"X_ERR_R"}, []string{"3"})
	out := apply(t, QuadratureError("X_ERR_R", 4), c)
	assert.Equal(t, "5", out.Rows[0]["X_ERR_R"])
}

func TestChandraPipeline(t *testing.T) {
	raw := build(t, "chandra",
		[]string{"_RAJ2000", "_DEJ2000", "CX", "RAJ2000", "DEJ2000", "Total", "Dpos"},
		[]string{"266.1", "-29.1", "210", "266.1", "-29.1", "12", "1.2"},
		[]string{"267.5", "-28.0", "1092", "267.5", "-28.0", "4", "0.0"},
	)
	p, err := Chandra(DefaultChandraConfig())
	require.NoError(t, err)

	out, results, err := p.Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, []string{"GBS_NAME", "X_RAJ2000", "X_DEJ2000", "X_COUNTS", "X_ERR_R"}, out.Columns)
	assert.Equal(t, []string{"CX210", "CX1092"}, column(out, "GBS_NAME"))

	extra := 0.7*0.7 + math.Pow(0.16/0.4085, 2)
	for i, p := range []float64{1.2, 0} {
		got, err := strconv.ParseFloat(out.Rows[i]["X_ERR_R"], 64)
		require.NoError(t, err)
		assert.InDelta(t, math.Sqrt(p*p+extra), got, 1e-12)
	}
	assert.Equal(t, "210", raw.Rows[0]["CX"], "input is not modified")

	_, err = Chandra(ChandraConfig{})
	require.Error(t, err)
}

func TestGALEXPipeline(t *testing.T) {
	d := sky.ArcsecToDeg(1)
	cols := []string{"objid", "ra", "dec", "glon", "glat", "nuv_mag", "fov_radius"}
	f := strconv.FormatFloat
	right := build(t, "right", cols,
		[]string{"1", "266.0", "-29.0", "1.0", "-1.2", "20.1", "0.3"},
		[]string{"2", f(266.0+d, 'f', -1, 64), "-29.0", "1.0", "-1.2", "20.2", "0.1"},
		[]string{"3", "266.5", "-29.5", "1.5", "0.2", "19.0", "0.2"},
	)
	left := build(t, "left", cols,
		[]string{"4", "265.0", "-30.5", "358.5", "-1.5", "21.0", "0.4"},
		[]string{"5", "265.2", "-30.0", "355.0", "-1.5", "21.0", "0.4"},
		[]string{"6", "265.4", "-30.2", "359.0", "1.0", "", "0.4"},
	)

	cfg := GALEXConfig{
		DropMissing: true,
		Region:      DefaultRegion,
		Dedup: dedup.Options{
			Schema:    catalog.Schema{RA: "GLX_RA", Dec: "GLX_DEC", Rank: "DIST_2_FOV"},
			Tolerance: dedup.DefaultToleranceArcsec,
		},
	}
	out, results, err := GALEX(cfg).Run(context.Background(), Stack("galex", right, left))
	require.NoError(t, err)
	require.Len(t, results, 5)

	// 6 has a missing magnitude, 3 is in the plane, 5 is outside the strip
	// and 1 is a duplicate of the better-placed 2.
	assert.Equal(t, []string{"2", "4"}, column(out, "objid"))
	assert.Equal(t, "-1.5", out.Rows[1]["glon"])
	assert.True(t, out.Has("DIST_2_FOV"))
	assert.Equal(t, []int{6, 5, 5, 3, 3}, rowsBefore(results))
}

func rowsBefore(rs []StepResult) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.RowsBefore
	}
	return out
}

func TestPipeline_StopsAtFailure(t *testing.T) {
	calls := 0
	p := &Pipeline{Name: "t", Steps: []Step{
		NewStep("fail", func(context.Context, *catalog.Catalog) (*catalog.Catalog, error) {
			return nil, catalog.ErrSchema
		}),
		NewStep("never", func(_ context.Context, c *catalog.Catalog) (*catalog.Catalog, error) {
			calls++
			return c, nil
		}),
	}}
	_, _, err := p.Run(context.Background(), catalog.New("x"))
	require.ErrorIs(t, err, catalog.ErrSchema)
	assert.Contains(t, err.Error(), "fail")
	assert.Zero(t, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Run(ctx, catalog.New("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadRenames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renames.yaml")
	require.NoError(t, os.WriteFile(path, []byte("renames:\n  nuv_mag: MAG\n  fuv_mag: FUV_MAG\n"), 0o600))

	m, err := LoadRenames(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"nuv_mag": "MAG", "fuv_mag": "FUV_MAG"}, m)

	merged := mergeRenames(GALEXRenames, m)
	assert.Equal(t, "MAG", merged["nuv_mag"])
	assert.Equal(t, "NUV_MAG", GALEXRenames["nuv_mag"])

	require.NoError(t, os.WriteFile(path, []byte("renames: [oops"), 0o600))
	_, err = LoadRenames(path)
	require.Error(t, err)

	_, err = LoadRenames(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
