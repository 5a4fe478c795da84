package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/nfswatch/internal/collector"
	"github.com/schaermu/nfswatch/internal/poller"
)

func TestLoad(t *testing.T) {
	watchDir := t.TempDir()

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
watch:
  path: "` + watchDir + `"
  interval: "30s"
  heavy_load_threshold: 5000
  workers: 8

persist:
  dir: "/var/lib/nfswatch"

journal:
  path: "/var/lib/nfswatch/journal.db"

serve:
  listen_addr: "127.0.0.1:9090"

keypress: false
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Watch.Path != watchDir {
		t.Errorf("expected path %s, got %s", watchDir, cfg.Watch.Path)
	}
	if cfg.IntervalDuration() != 30*time.Second {
		t.Errorf("expected interval 30s, got %s", cfg.IntervalDuration())
	}
	if cfg.Watch.HeavyLoadThreshold != 5000 {
		t.Errorf("expected threshold 5000, got %d", cfg.Watch.HeavyLoadThreshold)
	}
	if cfg.Watch.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Watch.Workers)
	}
	if !cfg.JournalEnabled() || !cfg.ServeEnabled() {
		t.Error("expected journal and serve to be enabled")
	}
	if cfg.KeypressEnabled() {
		t.Error("expected keypress to be disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("watch:\n  path: /mnt/share/\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Watch.Path != "/mnt/share" {
		t.Errorf("expected cleaned path, got %s", cfg.Watch.Path)
	}
	if cfg.IntervalDuration() != DefaultInterval {
		t.Errorf("expected default interval, got %s", cfg.IntervalDuration())
	}
	if cfg.Watch.HeavyLoadThreshold != DefaultHeavyLoadThreshold {
		t.Errorf("expected default threshold, got %d", cfg.Watch.HeavyLoadThreshold)
	}
	if cfg.Watch.Workers != collector.DefaultWorkers() {
		t.Errorf("expected collector default workers %d, got %d", collector.DefaultWorkers(), cfg.Watch.Workers)
	}
	if DefaultHeavyLoadThreshold != poller.DefaultHeavyLoadThreshold {
		t.Errorf("config and poller threshold defaults differ: %d vs %d", DefaultHeavyLoadThreshold, poller.DefaultHeavyLoadThreshold)
	}
	if cfg.Persist.Dir != "." {
		t.Errorf("expected default persist dir, got %s", cfg.Persist.Dir)
	}
	if !cfg.KeypressEnabled() {
		t.Error("expected keypress enabled by default")
	}
	if cfg.JournalEnabled() || cfg.ServeEnabled() {
		t.Error("journal and serve should be disabled by default")
	}
}

func TestParseIntervalForms(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{name: "duration string", yaml: `interval: "1m30s"`, want: 90 * time.Second},
		{name: "integer seconds", yaml: `interval: 15`, want: 15 * time.Second},
		{name: "invalid", yaml: `interval: "soon"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte("watch:\n  " + tt.yaml + "\n"))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if cfg.IntervalDuration() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, cfg.IntervalDuration())
			}
		})
	}
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("NFSWATCH_TEST_ROOT", "/mnt/from-env")

	cfg, err := Parse([]byte("watch:\n  path: ${NFSWATCH_TEST_ROOT}/share\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Watch.Path != "/mnt/from-env/share" {
		t.Errorf("expected expanded path, got %s", cfg.Watch.Path)
	}
}

func TestValidate(t *testing.T) {
	watchDir := t.TempDir()
	regularFile := filepath.Join(watchDir, "file")
	if err := os.WriteFile(regularFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	valid := func() Config {
		cfg := Config{Watch: WatchConfig{Path: watchDir}}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing path", mutate: func(c *Config) { c.Watch.Path = "" }, wantErr: "watch.path is required"},
		{name: "relative path", mutate: func(c *Config) { c.Watch.Path = "share" }, wantErr: "absolute"},
		{name: "nonexistent path", mutate: func(c *Config) { c.Watch.Path = filepath.Join(watchDir, "nope") }, wantErr: "does not exist"},
		{name: "path is a file", mutate: func(c *Config) { c.Watch.Path = regularFile }, wantErr: "not a directory"},
		{name: "negative interval", mutate: func(c *Config) { c.Watch.Interval = Duration(-time.Second) }, wantErr: "interval"},
		{name: "negative threshold", mutate: func(c *Config) { c.Watch.HeavyLoadThreshold = -1 }, wantErr: "heavy_load_threshold"},
		{name: "negative workers", mutate: func(c *Config) { c.Watch.Workers = -2 }, wantErr: "workers"},
		{name: "persist dir inside watch path", mutate: func(c *Config) { c.Persist.Dir = filepath.Join(watchDir, "snapshots") }, wantErr: "persist.dir must be outside"},
		{name: "persist dir is watch path", mutate: func(c *Config) { c.Persist.Dir = watchDir }, wantErr: "persist.dir must be outside"},
		{name: "persist dir sibling with shared prefix", mutate: func(c *Config) { c.Persist.Dir = watchDir + "-snapshots" }},
		{name: "relative journal", mutate: func(c *Config) { c.Journal.Path = "journal.db" }, wantErr: "journal.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
