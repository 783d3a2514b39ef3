// Package config handles configuration loading and validation for the rmlines
// tools.
//
// Configuration can be provided in TOML, JSON, or YAML format. Values not set
// in the file keep their defaults, and RMLINES_* environment variables
// override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"rmlines/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config is the complete rmlines configuration.
type Config struct {
	mu sync.RWMutex

	// Version of the configuration schema
	Version int `toml:"version" json:"version" yaml:"version"`

	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Writer  WriterConfig  `toml:"writer" json:"writer" yaml:"writer"`
	Catalog CatalogConfig `toml:"catalog" json:"catalog" yaml:"catalog"`
	Watch   WatchConfig   `toml:"watch" json:"watch" yaml:"watch"`
	Export  ExportConfig  `toml:"export" json:"export" yaml:"export"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error"
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format: "text" or "json"
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output: "stdout", "stderr", or "file"
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is "file"
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// AddSource includes the source location in log entries
	AddSource bool `toml:"add_source" json:"add_source" yaml:"add_source"`
}

// WriterConfig controls how scene files are written back.
type WriterConfig struct {
	// Version is the device software version to emulate, e.g. "3.2.2".
	// Empty writes blocks exactly as they were read.
	Version string `toml:"version" json:"version" yaml:"version"`
}

// CatalogConfig controls the parse catalog database.
type CatalogConfig struct {
	// Path to the SQLite database
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// WatchConfig controls directory watching.
type WatchConfig struct {
	// Paths to watch for scene files
	Paths []string `toml:"paths" json:"paths" yaml:"paths"`

	// IncludePatterns are glob patterns a file name must match
	IncludePatterns []string `toml:"include_patterns" json:"include_patterns" yaml:"include_patterns"`

	// ExcludePatterns are glob patterns of file names to skip
	ExcludePatterns []string `toml:"exclude_patterns" json:"exclude_patterns" yaml:"exclude_patterns"`

	// DebounceMs is how long a file must stay unchanged before it is parsed
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// MaxFileSize is the largest file parsed, in bytes (0 = unlimited)
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size" yaml:"max_file_size"`

	// Recursive watches subdirectories too
	Recursive bool `toml:"recursive" json:"recursive" yaml:"recursive"`
}

// ExportConfig controls snapshot export.
type ExportConfig struct {
	// Format: "json", "yaml", or "cbor"
	Format string `toml:"format" json:"format" yaml:"format"`

	// Dir is where rmlinesd writes a snapshot for every parsed file.
	// Empty disables snapshot output.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`
}

// MetricsConfig controls the rmlinesd HTTP endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics and the health checks,
	// e.g. "127.0.0.1:9464". Empty disables the endpoint.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Catalog: CatalogConfig{
			Path:          filepath.Join(dir, "catalog.db"),
			BusyTimeoutMs: 5000,
		},
		Watch: WatchConfig{
			Paths:           []string{},
			IncludePatterns: DefaultIncludePatterns(),
			ExcludePatterns: DefaultExcludePatterns(),
			DebounceMs:      500,
			MaxFileSize:     64 * 1024 * 1024, // 64MB
			Recursive:       true,
		},
		Export: ExportConfig{
			Format: "json",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base rmlines data directory.
// RMLINES_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("RMLINES_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads the configuration at path over the defaults and applies the
// environment overrides. It does not validate; a missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Catalog.Path),
		c.Export.Dir,
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(expandPath(dir), 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with RMLINES_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Logging overrides
	if v := os.Getenv("RMLINES_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RMLINES_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("RMLINES_LOG_PATH"); v != "" {
		c.Logging.Output = "file"
		c.Logging.FilePath = v
	}

	if v := os.Getenv("RMLINES_WRITER_VERSION"); v != "" {
		c.Writer.Version = v
	}
	if v := os.Getenv("RMLINES_CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}

	// Watch overrides
	if v := os.Getenv("RMLINES_WATCH_PATHS"); v != "" {
		c.Watch.Paths = filepath.SplitList(v)
	}
	if v := os.Getenv("RMLINES_WATCH_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Watch.DebounceMs = ms
		}
	}

	if v := os.Getenv("RMLINES_EXPORT_FORMAT"); v != "" {
		c.Export.Format = strings.ToLower(v)
	}
	if v := os.Getenv("RMLINES_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := os.Getenv("RMLINES_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version: c.Version,
		Logging: c.Logging,
		Writer:  c.Writer,
		Catalog: c.Catalog,
		Watch:   c.Watch,
		Export:  c.Export,
		Metrics: c.Metrics,
	}
	clone.Watch.Paths = append([]string{}, c.Watch.Paths...)
	clone.Watch.IncludePatterns = append([]string{}, c.Watch.IncludePatterns...)
	clone.Watch.ExcludePatterns = append([]string{}, c.Watch.ExcludePatterns...)
	return clone
}

// LoggerConfig converts the logging section for logging.New.
func (l LoggingConfig) LoggerConfig(component string) (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:     level,
		Format:    format,
		Output:    l.Output,
		FilePath:  expandPath(l.FilePath),
		AddSource: l.AddSource,
		Component: component,
	}, nil
}

// WatchPaths returns the watch paths with a leading ~ expanded.
func (c *Config) WatchPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := make([]string, 0, len(c.Watch.Paths))
	for _, p := range c.Watch.Paths {
		paths = append(paths, expandPath(p))
	}
	return paths
}

// CatalogPath returns the catalog database path with a leading ~ expanded.
func (c *Config) CatalogPath() string {
	return expandPath(c.Catalog.Path)
}

// ExportDir returns the snapshot directory with a leading ~ expanded. It is
// empty when snapshot output is disabled.
func (c *Config) ExportDir() string {
	if c.Export.Dir == "" {
		return ""
	}
	return expandPath(c.Export.Dir)
}

// Encode writes the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return nil, fmt.Errorf("encode TOML: %w", err)
	}
	return []byte(b.String()), nil
}
