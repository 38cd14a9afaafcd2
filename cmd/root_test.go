package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"clean", "dedup", "match", "runs", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "gbs", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	assert.True(t, rootCmd.SilenceErrors)
	for _, name := range []string{"config", "log-level"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "root should have --%s", name)
		assert.Empty(t, flag.DefValue)
	}
}

func TestRootCommand_PreRunAppliesOverrides(t *testing.T) {
	dir := setupConfig(t)
	path := filepath.Join(dir, "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte("match:\n  tolerance_arcsec: 1.5\n"), 0644))

	prevPath, prevLevel := configPath, logLevel
	t.Cleanup(func() { configPath, logLevel = prevPath, prevLevel })
	configPath, logLevel = path, "debug"

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	assert.Equal(t, 1.5, cfg.Match.ToleranceArcsec)
	assert.Equal(t, "debug", cfg.Log.Level)

	configPath = filepath.Join(dir, "absent.yaml")
	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"generic", eris.New("store unavailable"), exitError},
		{"schema", eris.Wrap(&catalog.SchemaError{Catalog: "uv", Field: "ra"}, "match"), exitInput},
		{"malformed", &catalog.MalformedInputError{Catalog: "uv", Row: 3, Field: "dec", Value: "x"}, exitInput},
		{"tolerance", eris.Wrap(&sky.InvalidToleranceError{Value: 0}, "match"), exitInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestExecute_ReportsError(t *testing.T) {
	cmd := &cobra.Command{
		Use:           "gbs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return &catalog.SchemaError{Catalog: "uv", Field: "ra"}
		},
	}
	cmd.SetArgs([]string{})

	var stderr bytes.Buffer
	assert.Equal(t, exitInput, execute(cmd, &stderr))
	assert.Contains(t, stderr.String(), "gbs: ")
	assert.Contains(t, stderr.String(), "ra")

	ok := &cobra.Command{Use: "gbs", RunE: func(*cobra.Command, []string) error { return nil }}
	ok.SetArgs([]string{})
	stderr.Reset()
	assert.Equal(t, exitOK, execute(ok, &stderr))
	assert.Empty(t, stderr.String())
}

func TestCleanCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cleanCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["galex"])
	assert.True(t, names["chandra"])

	for _, c := range []string{"out", "rename-file", "drop-missing", "missing-columns"} {
		assert.NotNil(t, cleanGalexCmd.Flags().Lookup(c), "clean galex should have --%s", c)
	}
	assert.Equal(t, "false", cleanGalexCmd.Flags().Lookup("drop-missing").DefValue)
	assert.NotNil(t, cleanChandraCmd.Flags().Lookup("rename-file"))
}

func TestMatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"out", "xlsx", "shp", "tolerance", "degrees", "index", "metric", "workers", "on-malformed", "record"} {
		assert.NotNil(t, matchCmd.Flags().Lookup(name), "match should have --%s flag", name)
	}
	flag := matchCmd.Flags().Lookup("record")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestDedupCommand_Flags(t *testing.T) {
	for _, name := range []string{"out", "tolerance", "rank-key", "index", "on-malformed", "record"} {
		assert.NotNil(t, dedupCmd.Flags().Lookup(name), "dedup should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
		assert.NotNil(t, c.Flags().Lookup("format"), "runs %s should have --format", c.Name())
	}
	for _, name := range []string{"list", "show", "associations"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	setupConfig(t)
	cfg.Store.Driver = "mysql"

	_, err := initStore(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}
