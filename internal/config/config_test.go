package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 256, cfg.PageCacheMB)
	require.Equal(t, 1000, cfg.PlanCache.MaxEntries)
	require.Equal(t, dir, cfg.DataDir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := "page_cache_mb: 512\nvector:\n  default_ef_search: 128\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 512, cfg.PageCacheMB)
	require.Equal(t, 128, cfg.Vector.DefaultEfSearch)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	yaml := "page_cache_mb: 512\nbogus_key: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bogus_key")
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NEXUS_PAGE_CACHE_MB", "999")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 999, cfg.PageCacheMB)
}

func TestQueryTimeout(t *testing.T) {
	cfg := Default()
	cfg.Query.DefaultTimeoutMS = 5000
	require.Equal(t, 5_000_000_000.0, float64(cfg.QueryTimeout().Nanoseconds()))
}
