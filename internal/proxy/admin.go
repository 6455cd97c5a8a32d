package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/mmcdole/offlined/internal/domain"
	"github.com/mmcdole/offlined/internal/worker"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxPushPayload = 64 << 10

// Status describes the active worker and the stores on disk.
type Status struct {
	Version     string        `json:"version,omitempty"`
	State       string        `json:"state"`
	Controlling bool          `json:"controlling"`
	Stores      []StoreStatus `json:"stores"`
}

// StoreStatus describes one named store.
type StoreStatus struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// Admin serves the control endpoints for the worker: lifecycle status, the
// sync/push/notificationclick hooks, the notification stream and metrics.
type Admin struct {
	reg      *worker.Registration
	storage  domain.CacheStorage
	notify   http.Handler
	gatherer prom.Gatherer
	logger   *slog.Logger
}

// NewAdmin creates the admin handler. notify serves the notification stream
// and may be nil; a nil gatherer serves the default registry.
func NewAdmin(reg *worker.Registration, storage domain.CacheStorage, notify http.Handler, gatherer prom.Gatherer, logger *slog.Logger) *Admin {
	if gatherer == nil {
		gatherer = prom.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		reg:      reg,
		storage:  storage,
		notify:   notify,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Routes returns the admin mux.
func (a *Admin) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /__offline/status", a.handleStatus)
	mux.HandleFunc("POST /__offline/sync", a.handleSync)
	mux.HandleFunc("POST /__offline/push", a.handlePush)
	mux.HandleFunc("POST /__offline/notificationclick", a.handleNotificationClick)
	if a.notify != nil {
		mux.Handle("GET /__offline/notifications", a.notify)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(
		a.gatherer,
		promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
			ErrorLog:      promLogger{logger: a.logger},
		},
	))
	return mux
}

func (a *Admin) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{State: "none", Stores: []StoreStatus{}}

	var names domain.StoreNames
	if active := a.reg.Active(); active != nil {
		names = active.Names()
		status.Version = active.Version()
		status.State = active.State().String()
		status.Controlling = active.Controlling()
	}

	storeNames, err := a.storage.Names()
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	sort.Strings(storeNames)
	for _, name := range storeNames {
		n, err := a.storage.Count(name)
		if errors.Is(err, domain.ErrStoreNotFound) {
			// Evicted since Names
			continue
		}
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		status.Stores = append(status.Stores, StoreStatus{
			Name:    name,
			Entries: n,
			Current: names.Version != "" && names.Allowed(name),
		})
	}

	a.writeJSON(w, http.StatusOK, status)
}

func (a *Admin) handleSync(w http.ResponseWriter, r *http.Request) {
	active, ok := a.active(w)
	if !ok {
		return
	}
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		tag = worker.SyncTag
	}
	if err := active.Sync(r.Context(), tag); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) handlePush(w http.ResponseWriter, r *http.Request) {
	active, ok := a.active(w)
	if !ok {
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushPayload))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(payload) == 0 {
		payload = nil
	}

	n, err := active.Push(r.Context(), payload)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, n)
}

func (a *Admin) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	active, ok := a.active(w)
	if !ok {
		return
	}
	if err := active.NotificationClick(r.Context()); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) active(w http.ResponseWriter) (*worker.Worker, bool) {
	active := a.reg.Active()
	if active == nil {
		a.writeError(w, http.StatusServiceUnavailable, domain.ErrNotActive)
		return nil, false
	}
	return active, true
}

func (a *Admin) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("failed to write admin response", "error", err)
	}
}

func (a *Admin) writeError(w http.ResponseWriter, status int, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	a.logger.Warn("admin request failed", "status", status, "error", err)
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}
