// Package config loads Nexus's typed configuration from a config.yaml plus
// environment-variable overrides: every key is parsed directly with yaml.v3
// and NEXUS_* variables are applied on top. BindViper is an optional extra
// for callers that want to expose the loaded values through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full typed configuration surface from spec §6.5. Unknown
// keys in config.yaml are rejected by Load (see knownKeys below) rather
// than silently ignored, per Design Notes §9 "Configuration objects".
type Config struct {
	DataDir string `yaml:"data_dir"`

	PageCacheMB int `yaml:"page_cache_mb"`

	WAL struct {
		CheckpointIntervalS int   `yaml:"checkpoint_interval_s"`
		MaxSegmentBytes     int64 `yaml:"max_segment_bytes"`
	} `yaml:"wal"`

	Query struct {
		DefaultTimeoutMS     int `yaml:"default_timeout_ms"`
		SlowQueryThresholdMS int `yaml:"slow_query_threshold_ms"`
	} `yaml:"query"`

	PlanCache struct {
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"plan_cache"`

	Vector struct {
		DefaultEfSearch int `yaml:"default_ef_search"`
	} `yaml:"vector"`

	Auth struct {
		Enabled      bool   `yaml:"enabled"`
		RootEnabled  bool   `yaml:"root_enabled"`
		RootPassword string `yaml:"root_password"`
	} `yaml:"auth"`

	Telemetry struct {
		OTLPEndpoint string `yaml:"otlp_endpoint"`
	} `yaml:"telemetry"`
}

// knownKeys enumerates every top-level and nested dotted key Load will
// accept from config.yaml. Anything else is a hard error at load time.
var knownKeys = map[string]bool{
	"data_dir":                     true,
	"page_cache_mb":                true,
	"wal.checkpoint_interval_s":    true,
	"wal.max_segment_bytes":        true,
	"query.default_timeout_ms":     true,
	"query.slow_query_threshold_ms": true,
	"plan_cache.max_entries":       true,
	"vector.default_ef_search":     true,
	"auth.enabled":                 true,
	"auth.root_enabled":            true,
	"auth.root_password":           true,
	"telemetry.otlp_endpoint":      true,
}

// Default returns the built-in defaults, used when no config.yaml exists.
func Default() *Config {
	c := &Config{
		DataDir:     "./nexus-data",
		PageCacheMB: 256,
	}
	c.WAL.CheckpointIntervalS = 300
	c.WAL.MaxSegmentBytes = 1 << 30
	c.Query.DefaultTimeoutMS = 30_000
	c.Query.SlowQueryThresholdMS = 1_000
	c.PlanCache.MaxEntries = 1000
	c.Vector.DefaultEfSearch = 64
	c.Auth.Enabled = false
	c.Auth.RootEnabled = true
	return c
}

// QueryTimeout returns the configured default per-query deadline.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Query.DefaultTimeoutMS) * time.Millisecond
}

// Load reads config.yaml from dataDir (if present) directly via yaml.v3 —
// mirroring internal/config/local_config.go's LoadLocalConfig — then applies
// NEXUS_<DOTTED_KEY> environment variables (read with os.Getenv, see
// applyEnvOverrides) on top. If no file exists it returns Default() with
// DataDir set to dataDir and the environment overrides applied.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	cfg.DataDir = dataDir

	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path) // #nosec G304 - path built from caller-supplied dataDir
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := validateKnownKeys(data); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.DataDir = dataDir

	applyEnvOverrides(cfg)
	return cfg, nil
}

// validateKnownKeys rejects any top-level or nested key not in knownKeys,
// flattening the document the same way viper would key an env override.
func validateKnownKeys(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}
	for _, k := range flattenKeys("", raw) {
		if !knownKeys[k] {
			return fmt.Errorf("config: unknown key %q", k)
		}
	}
	return nil
}

func flattenKeys(prefix string, m map[string]any) []string {
	var out []string
	for k, v := range m {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			out = append(out, flattenKeys(full, nested)...)
			continue
		}
		out = append(out, full)
	}
	return out
}

// applyEnvOverrides applies NEXUS_<DOTTED_KEY_WITH_UNDERSCORES> overrides,
// e.g. NEXUS_PAGE_CACHE_MB, NEXUS_WAL_CHECKPOINT_INTERVAL_S.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEXUS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := getEnvInt("NEXUS_PAGE_CACHE_MB"); v != nil {
		cfg.PageCacheMB = *v
	}
	if v := getEnvInt("NEXUS_WAL_CHECKPOINT_INTERVAL_S"); v != nil {
		cfg.WAL.CheckpointIntervalS = *v
	}
	if v := getEnvInt64("NEXUS_WAL_MAX_SEGMENT_BYTES"); v != nil {
		cfg.WAL.MaxSegmentBytes = *v
	}
	if v := getEnvInt("NEXUS_QUERY_DEFAULT_TIMEOUT_MS"); v != nil {
		cfg.Query.DefaultTimeoutMS = *v
	}
	if v := getEnvInt("NEXUS_QUERY_SLOW_QUERY_THRESHOLD_MS"); v != nil {
		cfg.Query.SlowQueryThresholdMS = *v
	}
	if v := getEnvInt("NEXUS_PLAN_CACHE_MAX_ENTRIES"); v != nil {
		cfg.PlanCache.MaxEntries = *v
	}
	if v := getEnvInt("NEXUS_VECTOR_DEFAULT_EF_SEARCH"); v != nil {
		cfg.Vector.DefaultEfSearch = *v
	}
	if v := getEnvBool("NEXUS_AUTH_ENABLED"); v != nil {
		cfg.Auth.Enabled = *v
	}
	if v := getEnvBool("NEXUS_AUTH_ROOT_ENABLED"); v != nil {
		cfg.Auth.RootEnabled = *v
	}
	if v := os.Getenv("NEXUS_AUTH_ROOT_PASSWORD"); v != "" {
		cfg.Auth.RootPassword = v
	}
	if v := os.Getenv("NEXUS_TELEMETRY_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

func getEnvInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func getEnvInt64(key string) *int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func getEnvBool(key string) *bool {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

// Watcher watches config.yaml for edits via fsnotify and invokes onChange
// with the freshly reloaded Config, mirroring the teacher's dolt/watchdog.go
// use of fsnotify for live config/lock observation.
type Watcher struct {
	watcher *fsnotify.Watcher
	dataDir string
	done    chan struct{}
}

// NewWatcher starts watching dataDir/config.yaml. Call Close to stop.
func NewWatcher(dataDir string, onChange func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := w.Add(dataDir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dataDir, err)
	}

	cw := &Watcher{watcher: w, dataDir: dataDir, done: make(chan struct{})}
	go cw.loop(onChange)
	return cw, nil
}

func (w *Watcher) loop(onChange func(*Config)) {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, "config.yaml") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.dataDir)
			if err != nil {
				continue
			}
			onChange(cfg)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// BindViper exposes the loaded keys as viper defaults for callers that want
// flag/env/file precedence beyond the NEXUS_* overrides Load already applies
// directly. auth.root_password and telemetry.otlp_endpoint are not bound.
func BindViper(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("page_cache_mb", cfg.PageCacheMB)
	v.SetDefault("wal.checkpoint_interval_s", cfg.WAL.CheckpointIntervalS)
	v.SetDefault("wal.max_segment_bytes", cfg.WAL.MaxSegmentBytes)
	v.SetDefault("query.default_timeout_ms", cfg.Query.DefaultTimeoutMS)
	v.SetDefault("query.slow_query_threshold_ms", cfg.Query.SlowQueryThresholdMS)
	v.SetDefault("plan_cache.max_entries", cfg.PlanCache.MaxEntries)
	v.SetDefault("vector.default_ef_search", cfg.Vector.DefaultEfSearch)
	v.SetDefault("auth.enabled", cfg.Auth.Enabled)
	v.SetDefault("auth.root_enabled", cfg.Auth.RootEnabled)
	v.SetEnvPrefix("NEXUS")
	v.AutomaticEnv()
}
