package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(50), cfg.LargeFileMB)
	assert.Equal(t, 20, cfg.MaxSubprocesses)
	assert.Equal(t, int64(20), cfg.MinChunkMB)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.CacheDir)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().LargeFileMB, cfg.LargeFileMB)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_dir = "/var/cache/rx"
large_file_mb = 100
max_subprocesses = 8
log_level = "debug"

[hooks]
on_file_url = "http://hooks.local/file"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/rx", cfg.CacheDir)
	assert.Equal(t, int64(100), cfg.LargeFileMB)
	assert.Equal(t, 8, cfg.MaxSubprocesses)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://hooks.local/file", cfg.Hooks.OnFileURL)
}

func TestLoadMalformedTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`cache_dir = [broken`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`large_file_mb = 100`), 0o644))

	t.Setenv("RX_LARGE_FILE_MB", "200")
	t.Setenv("RX_CACHE_DIR", "/env/cache")
	t.Setenv("RX_MAX_SUBPROCESSES", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(200), cfg.LargeFileMB)
	assert.Equal(t, "/env/cache", cfg.CacheDir)
	assert.Equal(t, 4, cfg.MaxSubprocesses)
}

func TestRxDebugForcesDebugLevel(t *testing.T) {
	t.Setenv("RX_DEBUG", "1")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInvalidEnvIntIgnored(t *testing.T) {
	t.Setenv("RX_LARGE_FILE_MB", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().LargeFileMB, cfg.LargeFileMB)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("RX_MAX_SUBPROCESSES", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("RX_LOG_LEVEL", "verbose")
	_, err := Load("")
	assert.Error(t, err)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Config{CacheDir: "/var/cache/rx", LargeFileMB: 50, MinChunkMB: 20}
	assert.Equal(t, "/var/cache/rx/index", cfg.IndexDir())
	assert.Equal(t, "/var/cache/rx/scratch", cfg.ScratchDir())
	assert.Equal(t, int64(50*1024*1024), cfg.LargeFileBytes())
	assert.Equal(t, int64(20*1024*1024), cfg.MinChunkBytes())
}

func TestHookEnvWiring(t *testing.T) {
	t.Setenv("RX_HOOK_ON_MATCH_URL", "http://h/match")
	t.Setenv("RX_DISABLE_CUSTOM_HOOKS", "yes")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://h/match", cfg.Hooks.OnMatchURL)
	assert.True(t, cfg.Hooks.DisableCustom)
}

func TestXDGCacheHome(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/xdg/cache")
	assert.Equal(t, filepath.Join("/xdg/cache", "rx"), defaultCacheDir())
}
