package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "gbs.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 20.0, cfg.Server.RateLimit, 1e-12)
	assert.Equal(t, 40, cfg.Server.RateBurst)
	assert.InDelta(t, 2.5, cfg.Dedup.ToleranceArcsec, 1e-12)
	assert.Equal(t, "DIST_2_FOV", cfg.Dedup.RankKey)
	assert.Equal(t, "abort", cfg.Dedup.OnMalformed)
	assert.Equal(t, "linear", cfg.Dedup.Index)
	assert.InDelta(t, 5.0, cfg.Match.ToleranceArcsec, 1e-12)
	assert.Equal(t, "GBS_NAME", cfg.Match.PrimaryID)
	assert.Equal(t, "X_RAJ2000", cfg.Match.PrimaryRA)
	assert.Equal(t, "GLX_DEC", cfg.Match.SecondaryDec)
	assert.Equal(t, 4, cfg.Match.Workers)
	assert.Equal(t, "planar", cfg.Match.Metric)
	assert.InDelta(t, 3.1, cfg.Region.LonMax, 1e-12)
	assert.InDelta(t, 0.83, cfg.Region.LatCut, 1e-12)
	assert.InDelta(t, 0.7, cfg.Chandra.SystematicArcsec, 1e-12)
	assert.InDelta(t, 0.16, cfg.Chandra.BoresightArcsec, 1e-12)
	assert.InDelta(t, 0.4085, cfg.Chandra.BoresightScale, 1e-12)
	assert.Equal(t, "CX", cfg.Chandra.IDPrefix)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/gbs
log:
  level: debug
  format: console
match:
  tolerance_arcsec: 3
  index: grid
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 3.0, cfg.Match.ToleranceArcsec, 1e-12)
	assert.Equal(t, "grid", cfg.Match.Index)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Match.Workers)
	assert.InDelta(t, 2.5, cfg.Dedup.ToleranceArcsec, 1e-12)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GBS_STORE_DRIVER", "postgres")
	t.Setenv("GBS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GBS_SERVER_PORT", "3000")
	t.Setenv("GBS_MATCH_TOLERANCE_ARCSEC", "1.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 1.5, cfg.Match.ToleranceArcsec, 1e-12)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GBS_DEDUP_RANK_KEY=NUV_MAG_ERR\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("GBS_DEDUP_RANK_KEY") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "NUV_MAG_ERR", cfg.Dedup.RankKey)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("match: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte("match:\n  tolerance_arcsec: 2.5\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Match.ToleranceArcsec)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile_MissingExplicitPath(t *testing.T) {
	dir := chdirTemp(t)

	_, err := LoadFile(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "gbs.db"
	cfg.Dedup.ToleranceArcsec = 2.5
	cfg.Dedup.Index = "linear"
	cfg.Dedup.OnMalformed = "abort"
	cfg.Match.ToleranceArcsec = 5
	cfg.Match.PrimaryID = "GBS_NAME"
	cfg.Match.Workers = 4
	cfg.Match.Index = "grid"
	cfg.Match.Metric = "planar"
	cfg.Match.OnMalformed = "skip"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"dedup", "match", "store", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateDedup(t *testing.T) {
	cfg := validDefaults()
	cfg.Dedup.ToleranceArcsec = 0
	cfg.Dedup.Index = "kdtree"
	cfg.Dedup.OnMalformed = "ignore"

	err := cfg.Validate("dedup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup.tolerance_arcsec must be > 0")
	assert.Contains(t, err.Error(), `dedup.index "kdtree"`)
	assert.Contains(t, err.Error(), `dedup.on_malformed "ignore"`)
}

func TestValidateMatch(t *testing.T) {
	cfg := validDefaults()
	cfg.Match.ToleranceArcsec = 0
	err := cfg.Validate("match")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match.tolerance_arcsec must be > 0")

	cfg.Match.ToleranceArcsec = -1
	cfg.Match.PrimaryID = ""
	cfg.Match.Workers = 1000
	cfg.Match.Metric = "manhattan"

	err = cfg.Validate("match")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match.tolerance_arcsec must be > 0")
	assert.Contains(t, err.Error(), "match.primary_id is required")
	assert.Contains(t, err.Error(), "match.workers must be between 0 and 256")
	assert.Contains(t, err.Error(), `match.metric "manhattan"`)
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg.Server.Port = 8080
	cfg.Server.RateBurst = -1
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_burst")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
