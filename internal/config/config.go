package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/nfswatch/internal/collector"
	"github.com/schaermu/nfswatch/internal/poller"
)

const (
	DefaultInterval           = 10 * time.Second
	DefaultHeavyLoadThreshold = poller.DefaultHeavyLoadThreshold
)

// Config represents the complete nfswatch configuration
type Config struct {
	Watch    WatchConfig   `yaml:"watch"`
	Persist  PersistConfig `yaml:"persist"`
	Journal  JournalConfig `yaml:"journal"`
	Serve    ServeConfig   `yaml:"serve"`
	Keypress *bool         `yaml:"keypress"`
}

// WatchConfig configures the watched tree and the poll loop
type WatchConfig struct {
	Path               string   `yaml:"path"`
	Interval           Duration `yaml:"interval"`
	HeavyLoadThreshold int      `yaml:"heavy_load_threshold"`
	Workers            int      `yaml:"workers"`
}

// PersistConfig configures where heavy-load snapshots are written
type PersistConfig struct {
	Dir string `yaml:"dir"`
}

// JournalConfig configures the optional event journal
type JournalConfig struct {
	Path string `yaml:"path"`
}

// ServeConfig configures the optional status endpoint
type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Duration is a time.Duration that unmarshals from strings like "10s".
// Bare integers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration without validating it. Defaults and
// environment expansion are applied.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.expandEnv()
	cfg.ApplyDefaults()

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Watch.Path = os.ExpandEnv(c.Watch.Path)
	c.Persist.Dir = os.ExpandEnv(c.Persist.Dir)
	c.Journal.Path = os.ExpandEnv(c.Journal.Path)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Watch.Interval == 0 {
		c.Watch.Interval = Duration(DefaultInterval)
	}
	if c.Watch.HeavyLoadThreshold == 0 {
		c.Watch.HeavyLoadThreshold = DefaultHeavyLoadThreshold
	}
	if c.Watch.Workers == 0 {
		c.Watch.Workers = collector.DefaultWorkers()
	}
	if c.Persist.Dir == "" {
		c.Persist.Dir = "."
	}
	if c.Keypress == nil {
		enabled := true
		c.Keypress = &enabled
	}
	if c.Watch.Path != "" {
		c.Watch.Path = filepath.Clean(c.Watch.Path)
	}
}

// Validate checks the configuration for errors. The watch path must exist
// and be a directory.
func (c *Config) Validate() error {
	if c.Watch.Path == "" {
		return fmt.Errorf("watch.path is required")
	}
	if !filepath.IsAbs(c.Watch.Path) {
		return fmt.Errorf("watch.path must be an absolute path: %s", c.Watch.Path)
	}

	info, err := os.Stat(c.Watch.Path)
	if err != nil {
		return fmt.Errorf("watch.path does not exist or is inaccessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch.path is not a directory: %s", c.Watch.Path)
	}

	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive: %s", time.Duration(c.Watch.Interval))
	}
	if c.Watch.HeavyLoadThreshold <= 0 {
		return fmt.Errorf("watch.heavy_load_threshold must be positive: %d", c.Watch.HeavyLoadThreshold)
	}
	if c.Watch.Workers <= 0 {
		return fmt.Errorf("watch.workers must be positive: %d", c.Watch.Workers)
	}

	persistDir, err := filepath.Abs(c.Persist.Dir)
	if err != nil {
		return fmt.Errorf("persist.dir cannot be resolved: %w", err)
	}
	if isWithin(c.Watch.Path, persistDir) {
		return fmt.Errorf("persist.dir must be outside watch.path, snapshots would be reported as changes: %s", persistDir)
	}

	if c.Journal.Path != "" && !filepath.IsAbs(c.Journal.Path) {
		return fmt.Errorf("journal.path must be an absolute path: %s", c.Journal.Path)
	}

	return nil
}

// isWithin reports whether path is root or lies beneath it
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IntervalDuration returns the poll interval as a time.Duration
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Watch.Interval)
}

// KeypressEnabled reports whether 'q' on stdin stops the watcher
func (c *Config) KeypressEnabled() bool {
	return c.Keypress == nil || *c.Keypress
}

// JournalEnabled reports whether events are journaled
func (c *Config) JournalEnabled() bool {
	return c.Journal.Path != ""
}

// ServeEnabled reports whether the status endpoint is enabled
func (c *Config) ServeEnabled() bool {
	return c.Serve.ListenAddr != ""
}
