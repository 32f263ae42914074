// Package config loads the rifflux.yaml configuration surface, applying
// defaults, then a YAML file, then RIFFLUX_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EmbeddingBackend selects which embedder backend the embedder package
// instantiates.
type EmbeddingBackend string

const (
	BackendAuto     EmbeddingBackend = "auto"
	BackendONNXLike EmbeddingBackend = "onnx-like"
	BackendHash     EmbeddingBackend = "hash"
)

// defaultExcludeGlobs are the VCS/cache/build directories skipped by
// default, narrowed to this project's markdown-only domain.
var defaultExcludeGlobs = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/.tmp/**",
}

// Config is the complete recognized configuration surface.
type Config struct {
	EmbeddingBackend EmbeddingBackend `yaml:"embedding_backend"`
	EmbeddingModel   string           `yaml:"embedding_model"`
	EmbeddingDim     int              `yaml:"embedding_dim"`
	DBPath           string           `yaml:"db_path"`
	IncludeGlobs     []string         `yaml:"include_globs"`
	ExcludeGlobs     []string         `yaml:"exclude_globs"`

	AutoReindexOnSearch           bool     `yaml:"auto_reindex_on_search"`
	AutoReindexPaths              []string `yaml:"auto_reindex_paths"`
	AutoReindexMinIntervalSeconds float64  `yaml:"auto_reindex_min_interval_seconds"`

	FileWatcher            bool     `yaml:"file_watcher"`
	FileWatcherPaths       []string `yaml:"file_watcher_paths"`
	FileWatcherDebounceMs  int      `yaml:"file_watcher_debounce_ms"`
}

// Default returns the configuration with every recognized option set to
// its documented default.
func Default() *Config {
	return &Config{
		EmbeddingBackend: BackendAuto,
		EmbeddingModel:   "BAAI/bge-small-en-v1.5",
		EmbeddingDim:     384,
		DBPath:           filepath.Join(".tmp", "rifflux", "rifflux.db"),
		IncludeGlobs:     []string{"*.md"},
		ExcludeGlobs:     append([]string{}, defaultExcludeGlobs...),

		AutoReindexOnSearch:           false,
		AutoReindexPaths:              nil,
		AutoReindexMinIntervalSeconds: 2.0,

		FileWatcher:           false,
		FileWatcherPaths:      nil,
		FileWatcherDebounceMs: 500,
	}
}

// Load builds the effective configuration: defaults, then path (if it
// exists), then RIFFLUX_* environment overrides. A missing path is not an
// error, defaults stand alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.EmbeddingBackend != "" {
		c.EmbeddingBackend = other.EmbeddingBackend
	}
	if other.EmbeddingModel != "" {
		c.EmbeddingModel = other.EmbeddingModel
	}
	if other.EmbeddingDim != 0 {
		c.EmbeddingDim = other.EmbeddingDim
	}
	if other.DBPath != "" {
		c.DBPath = other.DBPath
	}
	if len(other.IncludeGlobs) > 0 {
		c.IncludeGlobs = other.IncludeGlobs
	}
	if len(other.ExcludeGlobs) > 0 {
		c.ExcludeGlobs = other.ExcludeGlobs
	}
	if other.AutoReindexOnSearch {
		c.AutoReindexOnSearch = other.AutoReindexOnSearch
	}
	if len(other.AutoReindexPaths) > 0 {
		c.AutoReindexPaths = other.AutoReindexPaths
	}
	if other.AutoReindexMinIntervalSeconds != 0 {
		c.AutoReindexMinIntervalSeconds = other.AutoReindexMinIntervalSeconds
	}
	if other.FileWatcher {
		c.FileWatcher = other.FileWatcher
	}
	if len(other.FileWatcherPaths) > 0 {
		c.FileWatcherPaths = other.FileWatcherPaths
	}
	if other.FileWatcherDebounceMs != 0 {
		c.FileWatcherDebounceMs = other.FileWatcherDebounceMs
	}
}

// applyEnvOverrides applies RIFFLUX_* environment variable overrides, the
// highest-precedence tier below CLI flags.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RIFFLUX_EMBEDDING_BACKEND"); v != "" {
		c.EmbeddingBackend = EmbeddingBackend(v)
	}
	if v := os.Getenv("RIFFLUX_EMBEDDING_MODEL"); v != "" {
		c.EmbeddingModel = v
	}
	if v := os.Getenv("RIFFLUX_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.EmbeddingDim = n
		}
	}
	if v := os.Getenv("RIFFLUX_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("RIFFLUX_INCLUDE_GLOBS"); v != "" {
		c.IncludeGlobs = strings.Split(v, ",")
	}
	if v := os.Getenv("RIFFLUX_EXCLUDE_GLOBS"); v != "" {
		c.ExcludeGlobs = strings.Split(v, ",")
	}
	if v := os.Getenv("RIFFLUX_AUTO_REINDEX_ON_SEARCH"); v != "" {
		c.AutoReindexOnSearch = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RIFFLUX_AUTO_REINDEX_MIN_INTERVAL_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.AutoReindexMinIntervalSeconds = f
		}
	}
	if v := os.Getenv("RIFFLUX_FILE_WATCHER"); v != "" {
		c.FileWatcher = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RIFFLUX_FILE_WATCHER_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.FileWatcherDebounceMs = n
		}
	}
}

// Validate rejects a configuration the rest of the engine could not act on.
func (c *Config) Validate() error {
	switch c.EmbeddingBackend {
	case BackendAuto, BackendONNXLike, BackendHash:
	default:
		return fmt.Errorf("embedding_backend must be auto, onnx-like, or hash, got %q", c.EmbeddingBackend)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.AutoReindexMinIntervalSeconds < 0 {
		return fmt.Errorf("auto_reindex_min_interval_seconds must be non-negative, got %f", c.AutoReindexMinIntervalSeconds)
	}
	if c.FileWatcherDebounceMs < 0 {
		return fmt.Errorf("file_watcher_debounce_ms must be non-negative, got %d", c.FileWatcherDebounceMs)
	}
	return nil
}

// WriteYAML writes the configuration to path, creating parent directories
// as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
