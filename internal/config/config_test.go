package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Usage.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Usage.Concurrency)
	}
	if cfg.FetchTimeout() != time.Second {
		t.Errorf("FetchTimeout() = %v, want 1s", cfg.FetchTimeout())
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `paths:
  projects_dir: /data/projects
  data_dir: /data/ccem
pricing:
  offline: true
usage:
  concurrency: 2
  timezone: Asia/Tokyo
history:
  db_path: /data/history.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ProjectsDir() != "/data/projects" {
		t.Errorf("ProjectsDir() = %s, want /data/projects", cfg.ProjectsDir())
	}
	if cfg.CachePath() != filepath.Join("/data/ccem", "usage-cache.json") {
		t.Errorf("CachePath() = %s", cfg.CachePath())
	}
	if cfg.DBPath() != "/data/history.db" {
		t.Errorf("DBPath() = %s, want /data/history.db", cfg.DBPath())
	}
	if !cfg.Pricing.Offline {
		t.Error("Offline = false, want true")
	}
	if cfg.Usage.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Usage.Concurrency)
	}
	// Untouched keys keep their defaults.
	if cfg.Pricing.FetchTimeoutMs != 1000 {
		t.Errorf("FetchTimeoutMs = %d, want 1000", cfg.Pricing.FetchTimeoutMs)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if loc.String() != "Asia/Tokyo" {
		t.Errorf("Location() = %s, want Asia/Tokyo", loc)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("usage: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/.ccem"); got != filepath.Join(home, ".ccem") {
		t.Errorf("ExpandHome(~/.ccem) = %s", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %s", got)
	}
	if got := ExpandHome("~user/x"); !strings.HasPrefix(got, "~user") {
		t.Errorf("ExpandHome(~user/x) = %s, want unchanged", got)
	}
}

func TestDefaultLocation(t *testing.T) {
	loc, err := Default().Location()
	if err != nil {
		t.Fatal(err)
	}
	if loc != time.Local {
		t.Errorf("Location() = %v, want Local", loc)
	}
}
