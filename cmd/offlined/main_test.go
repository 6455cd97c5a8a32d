package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/offlined/internal/config"
	"github.com/mmcdole/offlined/internal/log"
	"github.com/mmcdole/offlined/internal/notify"
	"github.com/mmcdole/offlined/internal/proxy"
	"github.com/mmcdole/offlined/internal/store"
	"github.com/mmcdole/offlined/internal/worker"
)

func writeFileAtomic(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("replace config: %v", err)
	}
}

func configBody(origin, version string) string {
	return fmt.Sprintf(`server:
  origin: %s
  media_hosts: []
cache:
  dir: ""
  version: %s
  shell: ["/"]
logging:
  level: ERROR
`, origin, version)
}

func TestConfigEditRegistersNewVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html>page %s</html>", r.URL.Path)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFileAtomic(t, path, configBody(srv.URL, "v1"))

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	origin, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse origin: %v", err)
	}
	storage, err := store.Open("", "")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	reg := worker.NewRegistration(log.NullLogger())
	d := &deployer{
		reg:     reg,
		storage: storage,
		origin:  origin,
		client:  newUpstreamClient(5 * time.Second),
		metrics: proxy.NewWorkerMetric(),
		hub:     notify.NewHub(log.NullLogger()),
		logger:  log.NullLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.deploy(ctx, cfg); err != nil {
		t.Fatalf("deploy v1: %v", err)
	}
	if v := reg.Active().Version(); v != "v1" {
		t.Fatalf("expected v1 active, got %s", v)
	}

	d.watch(ctx, loader)
	writeFileAtomic(t, path, configBody(srv.URL, "v2"))

	deadline := time.Now().Add(5 * time.Second)
	for reg.Active().Version() != "v2" {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for v2, active is %s", reg.Active().Version())
		}
		time.Sleep(20 * time.Millisecond)
	}

	if storage.Has("mindfulreplay-static-v1") {
		t.Fatal("expected v1 stores to be evicted")
	}
	if !storage.Has("mindfulreplay-static-v2") {
		t.Fatal("expected v2 shell to be cached")
	}
	if recorded, _ := storage.ActiveVersion(); recorded != "v2" {
		t.Fatalf("expected v2 recorded, got %q", recorded)
	}
}
