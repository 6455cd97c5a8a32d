// Package inspect lists and filters stored responses for offlinectl.
package inspect

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/offlined/internal/domain"
	sfuzzy "github.com/sahilm/fuzzy"
	"golang.org/x/term"
)

const defaultWidth = 100

// StoreInfo summarizes one named store.
type StoreInfo struct {
	Name    string
	Entries int
	Current bool // Belongs to the configured version
}

// Entry summarizes one stored response.
type Entry struct {
	Key         string
	Status      int
	ContentType string
	Size        int
	StoredAt    time.Time
}

// EntryMatch is an entry plus the key positions that matched the query.
type EntryMatch struct {
	Entry
	MatchedIndexes []int
}

// ListStores returns the stores sorted by name. A non-empty filter keeps
// stores whose name contains its characters in order, ignoring case.
func ListStores(storage domain.CacheStorage, names domain.StoreNames, filter string) ([]StoreInfo, error) {
	all, err := storage.Names()
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	sort.Strings(all)

	var stores []StoreInfo
	for _, name := range all {
		if filter != "" && !fuzzy.MatchFold(filter, name) {
			continue
		}
		n, err := storage.Count(name)
		if errors.Is(err, domain.ErrStoreNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("count store %s: %w", name, err)
		}
		stores = append(stores, StoreInfo{
			Name:    name,
			Entries: n,
			Current: names.Allowed(name),
		})
	}
	return stores, nil
}

// entrySource adapts entries for sahilm/fuzzy.
type entrySource []Entry

func (s entrySource) String(i int) string { return strings.ToLower(s[i].Key) }
func (s entrySource) Len() int            { return len(s) }

// ListEntries returns the entries of c. Without a query entries are sorted by
// key; with one, only matching entries are returned, best match first.
func ListEntries(c domain.Cache, query string) ([]EntryMatch, error) {
	keys, err := c.Keys()
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", c.Name(), err)
	}
	sort.Strings(keys)

	entries := make(entrySource, 0, len(keys))
	for _, key := range keys {
		snap, ok := c.Match(key)
		if !ok {
			// Deleted since Keys
			continue
		}
		entries = append(entries, Entry{
			Key:         key,
			Status:      snap.Status,
			ContentType: snap.Header.Get("Content-Type"),
			Size:        len(snap.Body),
			StoredAt:    snap.StoredAt,
		})
	}

	query = strings.TrimSpace(query)
	if query == "" {
		matches := make([]EntryMatch, len(entries))
		for i, e := range entries {
			matches[i] = EntryMatch{Entry: e}
		}
		return matches, nil
	}

	found := sfuzzy.FindFrom(strings.ToLower(query), entries)
	matches := make([]EntryMatch, len(found))
	for i, m := range found {
		matches[i] = EntryMatch{Entry: entries[m.Index], MatchedIndexes: m.MatchedIndexes}
	}
	return matches, nil
}

// TerminalWidth returns the width of f, or a default when f is not a terminal.
func TerminalWidth(f *os.File) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
