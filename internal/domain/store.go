package domain

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Snapshot is one stored HTTP response.
type Snapshot struct {
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"storedAt"`
	Compressed bool        `json:"compressed,omitempty"`
}

// OK reports whether the snapshot status is in the 2xx range.
func (s *Snapshot) OK() bool {
	return IsSuccess(s.Status)
}

// IsSuccess reports whether an HTTP status counts as a successful response.
func IsSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// Cache is a single named store of request key -> response snapshot.
// Writes overwrite: there is at most one entry per key.
type Cache interface {
	Name() string

	Match(key string) (*Snapshot, bool)
	Put(key string, snap *Snapshot) error

	// PutAll writes every entry or none of them.
	PutAll(entries map[string]*Snapshot) error

	Delete(key string) error
	Keys() ([]string, error)
	Len() int
}

// CacheStorage is the set of named stores for one origin.
type CacheStorage interface {
	// Open returns the named store, creating it on first use.
	Open(name string) (Cache, error)

	Names() ([]string, error)
	Has(name string) bool

	// Count returns the number of entries in an existing store without
	// creating it. A missing store is ErrStoreNotFound.
	Count(name string) (int, error)

	// Delete removes a store and all of its entries. It reports false when
	// no such store existed.
	Delete(name string) (bool, error)

	Close() error
}

// VersionRecorder remembers which worker version last activated, so a
// restarted process can resume it without installing again.
type VersionRecorder interface {
	ActiveVersion() (string, error)
	SetActiveVersion(version string) error
}

// RequestKey returns the canonical cache key for a request: method plus the
// absolute URL without fragment or default port.
func RequestKey(method string, u *url.URL) string {
	if method == "" {
		method = http.MethodGet
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if port := c.Port(); (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
		c.Host = c.Hostname()
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return strings.ToUpper(method) + " " + c.String()
}
