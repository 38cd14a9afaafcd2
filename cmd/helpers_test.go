package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalogio"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/config"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/store"
)

// setupConfig loads default configuration from an empty temp dir and points
// the store at a SQLite file inside it.
func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.DatabaseURL = filepath.Join(dir, "runs.db")
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return dir
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := openStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func loadCatalog(t *testing.T, path string) *catalog.Catalog {
	t.Helper()
	cat, err := catalogio.Load(context.Background(), path)
	require.NoError(t, err)
	return cat
}

func column(cat *catalog.Catalog, col string) []string {
	out := make([]string, cat.Len())
	for i, r := range cat.Rows {
		out[i] = r[col]
	}
	return out
}
