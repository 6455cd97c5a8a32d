package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  origin: https://notes.example.com
  media_hosts: [ytimg.com]
cache:
  dir: ""
  version: v7
  shell: ["/", "/offline"]
upstream:
  timeout: 5s
`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Origin != "https://notes.example.com" {
		t.Errorf("unexpected origin %q", cfg.Server.Origin)
	}
	if len(cfg.Server.MediaHosts) != 1 || cfg.Server.MediaHosts[0] != "ytimg.com" {
		t.Errorf("unexpected media hosts %v", cfg.Server.MediaHosts)
	}
	if cfg.Cache.Version != "v7" || cfg.Cache.Prefix != "mindfulreplay" {
		t.Errorf("unexpected cache names %q %q", cfg.Cache.Prefix, cfg.Cache.Version)
	}
	if cfg.Cache.Dir != "" {
		t.Errorf("expected memory-only cache dir, got %q", cfg.Cache.Dir)
	}
	if len(cfg.Cache.Shell) != 2 {
		t.Errorf("unexpected shell %v", cfg.Cache.Shell)
	}
	if cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Upstream.Timeout)
	}
	if cfg.Cache.APIPrefix != "/api/" {
		t.Errorf("expected default api prefix, got %q", cfg.Cache.APIPrefix)
	}

	names, err := cfg.StoreNames()
	if err != nil {
		t.Fatalf("store names: %v", err)
	}
	if got := names.AllowList(); got[0] != "mindfulreplay-static-v7" {
		t.Errorf("unexpected allow list %v", got)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "cache:\n  version: v1\n")
	t.Setenv("OFFLINED_CACHE_VERSION", "v2")
	t.Setenv("OFFLINED_SERVER_ORIGIN", "http://127.0.0.1:4000")

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.Version != "v2" {
		t.Errorf("expected env version, got %q", cfg.Cache.Version)
	}
	origin, err := cfg.OriginURL()
	if err != nil {
		t.Fatalf("origin: %v", err)
	}
	if origin.String() != "http://127.0.0.1:4000" {
		t.Errorf("unexpected origin %s", origin)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative origin", func(c *Config) { c.Server.Origin = "/app" }, "server.origin"},
		{"ftp origin", func(c *Config) { c.Server.Origin = "ftp://files" }, "server.origin"},
		{"empty version", func(c *Config) { c.Cache.Version = "" }, "version"},
		{"version with space", func(c *Config) { c.Cache.Version = "v 2" }, "version"},
		{"api prefix", func(c *Config) { c.Cache.APIPrefix = "api/" }, "cache.api_prefix"},
		{"shell path", func(c *Config) { c.Cache.Shell = []string{"memos"} }, "cache.shell"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("write default: %v", err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.Version != "v1" || cfg.Server.Origin != "http://localhost:3000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

// replaceConfig swaps path's contents in one rename so watchers never see a
// half-written file.
func replaceConfig(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("replace config: %v", err)
	}
}

func TestWatchReportsEdits(t *testing.T) {
	path := writeConfig(t, "cache:\n  dir: \"\"\n  version: v1\n")
	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	changes := make(chan *Config, 16)
	failures := make(chan error, 16)
	loader.Watch(func(cfg *Config) { changes <- cfg }, func(err error) { failures <- err })

	replaceConfig(t, path, "cache:\n  dir: \"\"\n  version: \"v 2\"\n")
	select {
	case err := <-failures:
		if !strings.Contains(err.Error(), "version") {
			t.Fatalf("expected a version error, got %v", err)
		}
	case cfg := <-changes:
		t.Fatalf("expected the invalid edit to be rejected, got version %q", cfg.Cache.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the invalid edit")
	}

	replaceConfig(t, path, "cache:\n  dir: \"\"\n  version: v2\n")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Cache.Version == "v2" {
				return
			}
		case <-failures:
		case <-deadline:
			t.Fatal("timed out waiting for the v2 edit")
		}
	}
}
