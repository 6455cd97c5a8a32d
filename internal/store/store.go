package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mmcdole/offlined/internal/domain"
	bolt "go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"
)

// compressThreshold is the body size above which snapshots are gzipped at rest.
const compressThreshold = 1024

// Promotion limits: at most promotedEntries encoded snapshots of up to
// maxPromotedSize bytes each are kept in memory.
const (
	promotedEntries = 1024
	maxPromotedSize = 64 << 10
)

// metaBucket holds process metadata, not responses. It is never listed.
var (
	metaBucket       = []byte("__offlined_meta")
	activeVersionKey = []byte("active_version")
)

// ErrLocked is returned by Open when another process holds the database.
var ErrLocked = errors.New("cache database is locked (is offlined running?)")

// Storage implements domain.CacheStorage using BoltDB, one bucket per store.
type Storage struct {
	db   *bolt.DB
	path string
	mu   sync.RWMutex // Protects mem, gen and activeVersion

	// In-memory cache for hot-path reads (promoted on access), keyed store\x00key
	cache *lru.Cache[string, []byte]

	// gen changes on every committed write so a read that raced a write
	// does not promote what it saw.
	gen uint64

	// Memory-only stores, used when there is no database
	mem           map[string]map[string][]byte
	activeVersion string
}

var _ domain.CacheStorage = (*Storage)(nil)

// Open opens the cache database for origin under baseDir. An empty baseDir
// selects memory-only mode (no persistence).
func Open(baseDir, origin string) (*Storage, error) {
	if baseDir == "" {
		return &Storage{mem: make(map[string]map[string][]byte)}, nil
	}

	dir := baseDir
	if origin != "" {
		dir = filepath.Join(baseDir, hashOrigin(origin))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "offline.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolterrors.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
		}
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	cache, err := lru.New[string, []byte](promotedEntries)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db, path: dbPath, cache: cache}, nil
}

// hashOrigin scopes databases per origin, the way browsers scope cache storage.
func hashOrigin(origin string) string {
	normalized := strings.TrimRight(strings.ToLower(origin), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

// Path returns the database file path, or "" in memory-only mode.
func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) Open(name string) (domain.Cache, error) {
	if name == "" || name == string(metaBucket) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStoreName, name)
	}

	if s.db == nil {
		s.mu.Lock()
		if _, ok := s.mem[name]; !ok {
			s.mem[name] = make(map[string][]byte)
		}
		s.mu.Unlock()
		return &bucketCache{s: s, name: name}, nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}
	return &bucketCache{s: s, name: name}, nil
}

func (s *Storage) Names() ([]string, error) {
	var names []string

	if s.db == nil {
		s.mu.RLock()
		for name := range s.mem {
			names = append(names, name)
		}
		s.mu.RUnlock()
		sort.Strings(names)
		return names, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if !bytes.Equal(name, metaBucket) {
				names = append(names, string(name))
			}
			return nil
		})
	})
	return names, err
}

func (s *Storage) Has(name string) bool {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		_, ok := s.mem[name]
		return ok
	}

	if name == string(metaBucket) {
		return false
	}
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return found
}

func (s *Storage) Count(name string) (int, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		store, ok := s.mem[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, name)
		}
		return len(store), nil
	}

	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil || name == string(metaBucket) {
			return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, name)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Storage) Delete(name string) (bool, error) {
	if name == string(metaBucket) {
		return false, nil
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem[name]; !ok {
			return false, nil
		}
		delete(s.mem, name)
		return true, nil
	}

	deleted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		deleted = true
		return tx.DeleteBucket([]byte(name))
	})
	if err != nil {
		return false, err
	}

	// Drop promoted entries only after the transaction committed
	prefix := name + "\x00"
	s.mu.Lock()
	s.gen++
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
	s.mu.Unlock()
	return deleted, nil
}

// ActiveVersion returns the version recorded by SetActiveVersion, or "".
func (s *Storage) ActiveVersion() (string, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.activeVersion, nil
	}

	var version string
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(metaBucket); b != nil {
			version = string(b.Get(activeVersionKey))
		}
		return nil
	})
	return version, err
}

// SetActiveVersion records the version that controls clients.
func (s *Storage) SetActiveVersion(version string) error {
	if s.db == nil {
		s.mu.Lock()
		s.activeVersion = version
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		return b.Put(activeVersionKey, []byte(version))
	})
}

// promote keeps a small entry in memory unless a write committed since gen
// was read.
func (s *Storage) promote(cacheKey string, data []byte, gen uint64) {
	if len(data) > maxPromotedSize {
		return
	}
	s.mu.Lock()
	if s.gen == gen {
		s.cache.Add(cacheKey, data)
	}
	s.mu.Unlock()
}

// === Store handle ===

type bucketCache struct {
	s    *Storage
	name string
}

func (c *bucketCache) Name() string {
	return c.name
}

func (c *bucketCache) cacheKey(key string) string {
	return c.name + "\x00" + key
}

func (c *bucketCache) Match(key string) (*domain.Snapshot, bool) {
	data, ok := c.get(key)
	if !ok {
		return nil, false
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, false
	}
	return snap, true
}

func (c *bucketCache) get(key string) ([]byte, bool) {
	s := c.s
	cacheKey := c.cacheKey(key)

	if s.db == nil {
		s.mu.RLock()
		data, ok := s.mem[c.name][key]
		s.mu.RUnlock()
		return data, ok
	}

	// Check memory cache first
	if data, ok := s.cache.Get(cacheKey); ok {
		return data, true
	}

	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	// Read from BoltDB
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.name))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return nil, false
	}

	s.promote(cacheKey, data, gen)
	return data, true
}

func (c *bucketCache) Put(key string, snap *domain.Snapshot) error {
	return c.PutAll(map[string]*domain.Snapshot{key: snap})
}

func (c *bucketCache) PutAll(entries map[string]*domain.Snapshot) error {
	s := c.s

	encoded := make(map[string][]byte, len(entries))
	for key, snap := range entries {
		data, err := encodeSnapshot(snap)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		encoded[key] = data
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		store, ok := s.mem[c.name]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, c.name)
		}
		for key, data := range encoded {
			store[key] = data
		}
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.name))
		if b == nil {
			return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, c.name)
		}
		for key, data := range encoded {
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Update memory cache only after the transaction committed
	s.mu.Lock()
	s.gen++
	for key, data := range encoded {
		if len(data) > maxPromotedSize {
			s.cache.Remove(c.cacheKey(key))
		} else {
			s.cache.Add(c.cacheKey(key), data)
		}
	}
	s.mu.Unlock()
	return nil
}

func (c *bucketCache) Delete(key string) error {
	s := c.s

	if s.db == nil {
		s.mu.Lock()
		delete(s.mem[c.name], key)
		s.mu.Unlock()
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.name))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	s.cache.Remove(c.cacheKey(key))
	s.mu.Unlock()
	return nil
}

func (c *bucketCache) Keys() ([]string, error) {
	s := c.s
	var keys []string

	if s.db == nil {
		s.mu.RLock()
		for key := range s.mem[c.name] {
			keys = append(keys, key)
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		return keys, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.name))
		if b == nil {
			return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, c.name)
		}
		cur := b.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func (c *bucketCache) Len() int {
	s := c.s
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.mem[c.name])
	}

	n := 0
	s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(c.name)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

// === Encoding ===

func encodeSnapshot(snap *domain.Snapshot) ([]byte, error) {
	stored := *snap
	stored.Compressed = false
	if len(snap.Body) > compressThreshold {
		if compData, err := compress(snap.Body); err == nil && len(compData) < len(snap.Body) {
			stored.Body = compData
			stored.Compressed = true
		}
	}
	return json.Marshal(&stored)
}

func decodeSnapshot(data []byte) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Compressed {
		body, err := decompress(snap.Body)
		if err != nil {
			return nil, err
		}
		snap.Body = body
		snap.Compressed = false
	}
	return &snap, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
