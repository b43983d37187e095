// Package config loads runtime settings from an optional TOML file with
// environment variable overrides. Precedence: defaults, then file, then
// RX_* environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the resolved runtime configuration.
type Config struct {
	// CacheDir holds the bolt database, line indexes, and scratch
	// space. Defaults to $XDG_CACHE_HOME/rx or ~/.cache/rx.
	CacheDir string `toml:"cache_dir"`

	// SearchRoot confines all file access. Empty leaves one-shot CLI
	// runs unconfined; the serve command falls back to the working
	// directory so the API never starts without a root.
	SearchRoot string `toml:"search_root"`

	// LargeFileMB is the size floor, in MiB, for trace caching and
	// index persistence.
	LargeFileMB int64 `toml:"large_file_mb"`

	// MaxSubprocesses caps concurrent search subprocesses.
	MaxSubprocesses int `toml:"max_subprocesses"`

	// MinChunkMB is the minimum chunk size in MiB; files below twice
	// this size are searched as a single chunk.
	MinChunkMB int64 `toml:"min_chunk_mb"`

	// RipgrepPath overrides the rg binary location.
	RipgrepPath string `toml:"ripgrep_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// ListenAddr is the HTTP API bind address for serve mode.
	ListenAddr string `toml:"listen_addr"`

	Hooks HooksConfig `toml:"hooks"`
}

// HooksConfig mirrors the webhook settings.
type HooksConfig struct {
	OnFileURL     string `toml:"on_file_url"`
	OnMatchURL    string `toml:"on_match_url"`
	OnCompleteURL string `toml:"on_complete_url"`
	DisableCustom bool   `toml:"disable_custom"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CacheDir:        defaultCacheDir(),
		LargeFileMB:     50,
		MaxSubprocesses: 20,
		MinChunkMB:      20,
		LogLevel:        "info",
		ListenAddr:      "127.0.0.1:8787",
	}
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "rx")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "rx-cache")
	}
	return filepath.Join(home, ".cache", "rx")
}

// DefaultPath returns the config file location, ~/.config/rx/config.toml.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rx", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "rx", "config.toml")
}

// Load resolves the configuration: defaults, the TOML file at path (a
// missing file is fine, a malformed one is not), then environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file, defaults apply.
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RX_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("RX_SEARCH_ROOTS"); v != "" {
		cfg.SearchRoot = v
	}
	if v, ok := envInt64("RX_LARGE_FILE_MB"); ok {
		cfg.LargeFileMB = v
	}
	if v, ok := envInt64("RX_MAX_SUBPROCESSES"); ok {
		cfg.MaxSubprocesses = int(v)
	}
	if v, ok := envInt64("RX_MIN_CHUNK_MB"); ok {
		cfg.MinChunkMB = v
	}
	if v := os.Getenv("RX_RIPGREP_PATH"); v != "" {
		cfg.RipgrepPath = v
	}
	if v := os.Getenv("RX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if envBool("RX_DEBUG") {
		cfg.LogLevel = "debug"
	}
	if v := os.Getenv("RX_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RX_HOOK_ON_FILE_URL"); v != "" {
		cfg.Hooks.OnFileURL = v
	}
	if v := os.Getenv("RX_HOOK_ON_MATCH_URL"); v != "" {
		cfg.Hooks.OnMatchURL = v
	}
	if v := os.Getenv("RX_HOOK_ON_COMPLETE_URL"); v != "" {
		cfg.Hooks.OnCompleteURL = v
	}
	if envBool("RX_DISABLE_CUSTOM_HOOKS") {
		cfg.Hooks.DisableCustom = true
	}
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func (c Config) validate() error {
	if c.LargeFileMB < 0 {
		return fmt.Errorf("large_file_mb must be >= 0, got %d", c.LargeFileMB)
	}
	if c.MaxSubprocesses < 1 {
		return fmt.Errorf("max_subprocesses must be >= 1, got %d", c.MaxSubprocesses)
	}
	if c.MinChunkMB < 1 {
		return fmt.Errorf("min_chunk_mb must be >= 1, got %d", c.MinChunkMB)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// LargeFileBytes converts the threshold to bytes.
func (c Config) LargeFileBytes() int64 {
	return c.LargeFileMB * 1024 * 1024
}

// MinChunkBytes converts the chunk floor to bytes.
func (c Config) MinChunkBytes() int64 {
	return c.MinChunkMB * 1024 * 1024
}

// IndexDir returns the line-index directory under the cache dir.
func (c Config) IndexDir() string {
	return filepath.Join(c.CacheDir, "index")
}

// ScratchDir returns the decompression scratch directory.
func (c Config) ScratchDir() string {
	return filepath.Join(c.CacheDir, "scratch")
}
