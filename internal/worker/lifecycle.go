package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mmcdole/offlined/internal/domain"
	"github.com/sourcegraph/conc/pool"
)

// shellEntry is one pre-cached application shell response.
type shellEntry struct {
	key  string
	snap *domain.Snapshot
}

// Install pre-caches the application shell into the static store while
// signalling that this version should activate without waiting. Both run
// concurrently and install completes only when both succeed. Any shell URL
// that fails to fetch, or answers with a non-success status, fails the whole
// install and nothing is stored.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(domain.StateInstalling)
	w.logger.Info("installing worker")

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(w.precacheShell)
	p.Go(func(context.Context) error {
		w.SkipWaiting()
		return nil
	})

	if err := p.Wait(); err != nil {
		w.setState(domain.StateRedundant)
		w.logger.Error("install failed", "error", err)
		return fmt.Errorf("%w: %w", domain.ErrInstallFailed, err)
	}

	w.setState(domain.StateInstalled)
	return nil
}

func (w *Worker) precacheShell(ctx context.Context) error {
	c, err := w.store(domain.RoleStatic)
	if err != nil {
		return fmt.Errorf("open static store: %w", err)
	}
	w.logger.Info("caching static assets", "store", c.Name(), "count", len(w.shell))

	p := pool.NewWithResults[shellEntry]().WithContext(ctx).WithCancelOnError()
	for _, path := range w.shell {
		p.Go(func(ctx context.Context) (shellEntry, error) {
			return w.fetchShellEntry(ctx, path)
		})
	}

	entries, err := p.Wait()
	if err != nil {
		return err
	}

	batch := make(map[string]*domain.Snapshot, len(entries))
	for _, e := range entries {
		batch[e.key] = e.snap
	}
	return c.PutAll(batch)
}

func (w *Worker) fetchShellEntry(ctx context.Context, path string) (shellEntry, error) {
	u := w.resolve(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return shellEntry{}, fmt.Errorf("build request for %s: %w", path, err)
	}

	snap, err := w.fetchSnapshot(ctx, req)
	if err != nil {
		return shellEntry{}, fmt.Errorf("fetch %s: %w", path, err)
	}
	if !snap.OK() {
		return shellEntry{}, fmt.Errorf("fetch %s: unexpected status %d", path, snap.Status)
	}
	return shellEntry{key: domain.RequestKey(http.MethodGet, u), snap: snap}, nil
}

// resumeInstalled marks a version installed by an earlier process as
// installed again, without fetching the shell.
func (w *Worker) resumeInstalled() {
	w.SkipWaiting()
	w.setState(domain.StateInstalled)
}

// SkipWaiting marks this version to activate as soon as it is installed.
func (w *Worker) SkipWaiting() {
	w.mu.Lock()
	w.skipWaiting = true
	w.mu.Unlock()
}

// SkipsWaiting reports whether SkipWaiting was called.
func (w *Worker) SkipsWaiting() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

// Activate deletes every store that does not belong to this version while
// claiming clients, so requests are intercepted immediately. Both run
// concurrently and activation completes only when both succeed.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(domain.StateActivating)
	w.logger.Info("activating worker")

	p := pool.New().WithContext(ctx)
	p.Go(func(context.Context) error {
		deleted, err := EvictStale(w.storage, w.names, w.logger)
		for _, name := range deleted {
			w.observer.ObserveEviction(name)
		}
		return err
	})
	p.Go(func(context.Context) error {
		w.Claim()
		return nil
	})

	if err := p.Wait(); err != nil {
		w.mu.Lock()
		w.state = domain.StateRedundant
		w.controlling = false
		w.mu.Unlock()
		w.logger.Error("activate failed", "error", err)
		return fmt.Errorf("activate: %w", err)
	}

	w.setState(domain.StateActivated)
	return nil
}

// Claim makes this worker the controller of all current clients.
func (w *Worker) Claim() {
	w.mu.Lock()
	w.controlling = true
	w.mu.Unlock()
}

// retire marks a replaced worker redundant; it stops intercepting.
func (w *Worker) retire() {
	w.mu.Lock()
	w.state = domain.StateRedundant
	w.controlling = false
	w.mu.Unlock()
	w.logger.Info("worker retired")
}

// EvictStale deletes every store whose name is not in names' allow list and
// returns the deleted names. Stores in the allow list are never touched.
func EvictStale(storage domain.CacheStorage, names domain.StoreNames, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	existing, err := storage.Names()
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	var deleted []string
	var errs []error
	for _, name := range existing {
		if names.Allowed(name) {
			continue
		}
		logger.Info("deleting old cache", "store", name)
		ok, err := storage.Delete(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		if ok {
			deleted = append(deleted, name)
		}
	}
	return deleted, errors.Join(errs...)
}
