package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmcdole/offlined/internal/domain"
	"github.com/mmcdole/offlined/internal/store"
)

func setupCache(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")

	s, err := store.Open(cacheDir, "http://localhost:3000")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	for _, name := range []string{"mindfulreplay-static-v1", "mindfulreplay-v1", "mindfulreplay-static-v0", "other-cache"} {
		c, err := s.Open(name)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		err = c.Put("GET http://localhost:3000/", &domain.Snapshot{Status: 200, Body: []byte("<html></html>")})
		if err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}

	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("cache:\n  dir: %s\n  version: v1\nlogging:\n  file: %s\n", cacheDir, filepath.Join(dir, "offlined.log"))
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		storesFilter = ""
		initForce = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStoresEvictPurge(t *testing.T) {
	cfgPath := setupCache(t)

	out, err := execute(t, "--config", cfgPath, "stores")
	if err != nil {
		t.Fatalf("stores: %v", err)
	}
	for _, name := range []string{"mindfulreplay-static-v1", "mindfulreplay-static-v0", "other-cache"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %s in listing:\n%s", name, out)
		}
	}

	out, err = execute(t, "--config", cfgPath, "stores", "--filter", "other")
	if err != nil {
		t.Fatalf("stores --filter: %v", err)
	}
	if !strings.Contains(out, "other-cache") || strings.Contains(out, "mindfulreplay-static-v1") {
		t.Errorf("unexpected filtered listing:\n%s", out)
	}

	out, err = execute(t, "--config", cfgPath, "evict")
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if !strings.Contains(out, "mindfulreplay-static-v0") || !strings.Contains(out, "other-cache") {
		t.Errorf("expected stale stores deleted:\n%s", out)
	}
	if strings.Contains(out, "mindfulreplay-static-v1") {
		t.Errorf("current store must survive eviction:\n%s", out)
	}

	if _, err := execute(t, "--config", cfgPath, "purge", "mindfulreplay-v1"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := execute(t, "--config", cfgPath, "purge", "mindfulreplay-v1"); err == nil {
		t.Fatal("expected purging a missing store to fail")
	}

	out, err = execute(t, "--config", cfgPath, "entries", "mindfulreplay-static-v1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if !strings.Contains(out, "GET http://localhost:3000/") {
		t.Errorf("expected stored key in listing:\n%s", out)
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := execute(t, "init", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := execute(t, "init", path); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, err := execute(t, "init", "--force", path); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}
