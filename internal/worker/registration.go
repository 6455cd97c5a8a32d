package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmcdole/offlined/internal/domain"
)

// Registration owns the controlling worker for one origin. It replaces
// ambient, global registration: callers hold a *Registration and ask it for
// the active worker per request.
type Registration struct {
	logger *slog.Logger

	regMu sync.Mutex // Serializes Register calls

	mu     sync.RWMutex
	active *Worker
}

// NewRegistration creates an empty registration. Until the first successful
// Register, Active returns nil and all traffic passes through.
func NewRegistration(logger *slog.Logger) *Registration {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registration{logger: logger}
}

// Active returns the controlling worker, or nil.
func (r *Registration) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Register installs and activates a new worker version. Install always skips
// waiting, so a successful install is followed by activation at once. If
// install or activation fails the previously active worker stays in control.
//
// The first registration in a process resumes the version recorded in
// storage instead of installing it again, so a restart without network
// still serves what was stored. When a new version fails to install on
// first registration, the recorded version is resumed in its place and the
// install error is still returned.
func (r *Registration) Register(ctx context.Context, opts Options) (*Worker, error) {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	w, err := New(opts)
	if err != nil {
		return nil, err
	}

	first := r.Active() == nil
	recorded := r.recordedVersion(opts.Storage)

	if first && recorded == w.Version() && installed(opts.Storage, w.Names()) {
		r.logger.Info("resuming installed worker", "version", w.Version())
		w.resumeInstalled()
		if err := r.activate(ctx, w); err != nil {
			return nil, err
		}
		return w, nil
	}

	if err := w.Install(ctx); err != nil {
		r.logger.Warn("keeping previous worker after failed install", "version", w.Version(), "error", err)
		if first && recorded != "" && recorded != w.Version() {
			r.resumeRecorded(ctx, opts, recorded)
		}
		return nil, err
	}

	if err := r.activate(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// activate runs activation for w and makes it the controlling worker.
func (r *Registration) activate(ctx context.Context, w *Worker) error {
	if err := w.Activate(ctx); err != nil {
		r.logger.Warn("keeping previous worker after failed activation", "version", w.Version(), "error", err)
		return err
	}

	r.mu.Lock()
	old := r.active
	r.active = w
	r.mu.Unlock()

	if old != nil && old != w {
		old.retire()
	}

	if rec, ok := w.storage.(domain.VersionRecorder); ok {
		if err := rec.SetActiveVersion(w.Version()); err != nil {
			r.logger.Warn("failed to record active version", "version", w.Version(), "error", err)
		}
	}

	r.logger.Info("worker activated", "version", w.Version())
	return nil
}

// resumeRecorded brings back the recorded version after a newer one failed
// to install before any worker was active.
func (r *Registration) resumeRecorded(ctx context.Context, opts Options, version string) {
	opts.Names.Version = version
	w, err := New(opts)
	if err != nil || !installed(opts.Storage, w.Names()) {
		return
	}
	r.logger.Info("resuming previously installed worker", "version", version)
	w.resumeInstalled()
	_ = r.activate(ctx, w)
}

func (r *Registration) recordedVersion(storage domain.CacheStorage) string {
	rec, ok := storage.(domain.VersionRecorder)
	if !ok {
		return ""
	}
	version, err := rec.ActiveVersion()
	if err != nil {
		r.logger.Warn("failed to read recorded version", "error", err)
		return ""
	}
	return version
}

// installed reports whether names' static store survived from an earlier
// install. Install always creates it.
func installed(storage domain.CacheStorage, names domain.StoreNames) bool {
	return storage.Has(names.Name(domain.RoleStatic))
}
