package store

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/offlined/internal/domain"
)

func openStorages(t *testing.T) map[string]*Storage {
	t.Helper()

	disk, err := Open(t.TempDir(), "http://localhost:3000")
	if err != nil {
		t.Fatalf("open disk storage: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	mem, err := Open("", "")
	if err != nil {
		t.Fatalf("open memory storage: %v", err)
	}

	return map[string]*Storage{"bolt": disk, "memory": mem}
}

func snapshot(status int, body string) *domain.Snapshot {
	return &domain.Snapshot{
		Status:   status,
		Header:   http.Header{"Content-Type": {"text/plain"}},
		Body:     []byte(body),
		StoredAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
}

func TestPutOverwritesSingleEntry(t *testing.T) {
	for name, s := range openStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, err := s.Open("app-static-v1")
			if err != nil {
				t.Fatalf("open store: %v", err)
			}

			key := "GET http://localhost:3000/memos"
			if err := c.Put(key, snapshot(200, "first")); err != nil {
				t.Fatalf("put first: %v", err)
			}
			if err := c.Put(key, snapshot(200, "second")); err != nil {
				t.Fatalf("put second: %v", err)
			}

			if got := c.Len(); got != 1 {
				t.Fatalf("expected 1 entry, got %d", got)
			}
			snap, ok := c.Match(key)
			if !ok {
				t.Fatal("expected entry to match")
			}
			if string(snap.Body) != "second" {
				t.Fatalf("expected latest body, got %q", snap.Body)
			}
			if snap.Header.Get("Content-Type") != "text/plain" {
				t.Fatalf("expected header to round trip, got %v", snap.Header)
			}
		})
	}
}

func TestMatchMissingKey(t *testing.T) {
	for name, s := range openStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, err := s.Open("app-api-v1")
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			if _, ok := c.Match("GET http://localhost:3000/api/memos"); ok {
				t.Fatal("expected miss on empty store")
			}
		})
	}
}

func TestLargeBodiesAreTransparentlyCompressed(t *testing.T) {
	for name, s := range openStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, err := s.Open("app-static-v1")
			if err != nil {
				t.Fatalf("open store: %v", err)
			}

			body := strings.Repeat("<p>memo</p>", 500)
			if err := c.Put("GET http://localhost:3000/", snapshot(200, body)); err != nil {
				t.Fatalf("put: %v", err)
			}

			snap, ok := c.Match("GET http://localhost:3000/")
			if !ok {
				t.Fatal("expected entry to match")
			}
			if !bytes.Equal(snap.Body, []byte(body)) {
				t.Fatal("expected body to survive compression")
			}
			if snap.Compressed {
				t.Fatal("expected decompressed snapshot")
			}
		})
	}
}

func TestNamesAndDelete(t *testing.T) {
	for name, s := range openStorages(t) {
		t.Run(name, func(t *testing.T) {
			for _, store := range []string{"app-v1", "app-static-v1", "app-api-v1"} {
				if _, err := s.Open(store); err != nil {
					t.Fatalf("open %s: %v", store, err)
				}
			}

			names, err := s.Names()
			if err != nil {
				t.Fatalf("names: %v", err)
			}
			if len(names) != 3 {
				t.Fatalf("expected 3 stores, got %v", names)
			}

			deleted, err := s.Delete("app-v1")
			if err != nil || !deleted {
				t.Fatalf("expected delete to succeed, got %v %v", deleted, err)
			}
			if s.Has("app-v1") {
				t.Fatal("expected store to be gone")
			}

			deleted, err = s.Delete("app-v1")
			if err != nil || deleted {
				t.Fatalf("expected second delete to be a no-op, got %v %v", deleted, err)
			}
		})
	}
}

func TestDeleteDropsPromotedEntries(t *testing.T) {
	for name, s := range openStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, err := s.Open("app-static-v1")
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			key := "GET http://localhost:3000/"
			if err := c.Put(key, snapshot(200, "shell")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, ok := c.Match(key); !ok {
				t.Fatal("expected hit before delete")
			}

			if _, err := s.Delete("app-static-v1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok := c.Match(key); ok {
				t.Fatal("expected miss after store deletion")
			}
			if err := c.Put(key, snapshot(200, "shell")); !errors.Is(err, domain.ErrStoreNotFound) {
				t.Fatalf("expected ErrStoreNotFound, got %v", err)
			}
		})
	}
}

func TestPutAllIsAtomic(t *testing.T) {
	for name, s := range openStorages(t) {
		t.Run(name, func(t *testing.T) {
			c, err := s.Open("app-static-v1")
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			entries := map[string]*domain.Snapshot{
				"GET http://localhost:3000/":      snapshot(200, "home"),
				"GET http://localhost:3000/memos": snapshot(200, "memos"),
				"GET http://localhost:3000/tasks": snapshot(200, "tasks"),
			}
			if err := c.PutAll(entries); err != nil {
				t.Fatalf("put all: %v", err)
			}
			keys, err := c.Keys()
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if len(keys) != 3 {
				t.Fatalf("expected 3 keys, got %v", keys)
			}
		})
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	origin := "http://localhost:3000"

	s, err := Open(dir, origin)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c, err := s.Open("app-api-v1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := c.Put("GET http://localhost:3000/api/tasks", snapshot(200, `{"success":true}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(dir, origin)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if !s.Has("app-api-v1") {
		t.Fatal("expected store to survive reopen")
	}
	c, err = s.Open("app-api-v1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	snap, ok := c.Match("GET http://localhost:3000/api/tasks")
	if !ok || string(snap.Body) != `{"success":true}` {
		t.Fatalf("expected persisted entry, got %v %v", snap, ok)
	}
}

func TestOpenRejectsEmptyName(t *testing.T) {
	s, _ := Open("", "")
	if _, err := s.Open(""); !errors.Is(err, domain.ErrInvalidStoreName) {
		t.Fatalf("expected ErrInvalidStoreName, got %v", err)
	}
}

func TestCountDoesNotCreateStore(t *testing.T) {
	for name, s := range openStorages(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Count("app-static-v0"); !errors.Is(err, domain.ErrStoreNotFound) {
				t.Fatalf("expected ErrStoreNotFound, got %v", err)
			}
			if s.Has("app-static-v0") {
				t.Fatal("Count must not create the store")
			}

			c, err := s.Open("app-static-v1")
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			if err := c.Put("GET http://localhost:3000/", snapshot(200, "root")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if n, err := s.Count("app-static-v1"); err != nil || n != 1 {
				t.Fatalf("expected 1 entry, got %d %v", n, err)
			}
		})
	}
}

func TestActiveVersionPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "http://localhost:3000")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if v, err := s.ActiveVersion(); err != nil || v != "" {
		t.Fatalf("expected no version, got %q %v", v, err)
	}
	if err := s.SetActiveVersion("v3"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(dir, "http://localhost:3000")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if v, err := s.ActiveVersion(); err != nil || v != "v3" {
		t.Fatalf("expected v3, got %q %v", v, err)
	}
	names, err := s.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("metadata must not be listed as a store, got %v", names)
	}
	if _, err := s.Open(string(metaBucket)); !errors.Is(err, domain.ErrInvalidStoreName) {
		t.Fatalf("expected metadata bucket to be reserved, got %v", err)
	}
	if deleted, _ := s.Delete(string(metaBucket)); deleted {
		t.Fatal("metadata bucket must not be deletable")
	}
}

func TestOnlySmallEntriesArePromoted(t *testing.T) {
	s, err := Open(t.TempDir(), "http://localhost:3000")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	c, err := s.Open("app-v1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	// Incompressible, so the encoded snapshot stays above the promotion limit
	large := make([]byte, 2*maxPromotedSize)
	seed := uint32(2463534242)
	for i := range large {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		large[i] = byte(seed)
	}
	bigKey := "GET https://i.ytimg.com/vi/abc/maxres.jpg"
	if err := c.Put(bigKey, &domain.Snapshot{Status: 200, Body: large}); err != nil {
		t.Fatalf("put large: %v", err)
	}
	smallKey := "GET https://i.ytimg.com/vi/abc/default.jpg"
	if err := c.Put(smallKey, snapshot(200, "thumb")); err != nil {
		t.Fatalf("put small: %v", err)
	}

	for _, key := range []string{bigKey, smallKey} {
		if _, ok := c.Match(key); !ok {
			t.Fatalf("expected %s to match", key)
		}
	}

	bc := c.(*bucketCache)
	if s.cache.Contains(bc.cacheKey(bigKey)) {
		t.Fatal("large entry must not be held in memory")
	}
	if !s.cache.Contains(bc.cacheKey(smallKey)) {
		t.Fatal("small entry should be promoted")
	}
}

func TestReadRacingDeleteDoesNotPromote(t *testing.T) {
	s, err := Open(t.TempDir(), "http://localhost:3000")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	c, err := s.Open("app-static-v1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	key := "GET http://localhost:3000/memos"
	if err := c.Put(key, snapshot(200, "memos")); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, _ := encodeSnapshot(snapshot(200, "memos"))

	// A reader that sampled the generation before the delete committed
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	if err := c.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	s.promote(c.(*bucketCache).cacheKey(key), data, gen)

	if _, ok := c.Match(key); ok {
		t.Fatal("deleted entry must not come back from memory")
	}
}
