package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/offlined/internal/domain"
)

// Defaults for the application this worker fronts.
var (
	DefaultMediaHosts = []string{"youtube.com", "ytimg.com"}
	DefaultShell      = []string{"/", "/memos", "/tasks", "/offline", "/manifest.json"}
)

const (
	DefaultAPIPrefix   = "/api/"
	DefaultAssetPrefix = "/_next/static/"
	DefaultOfflinePage = "/offline"
)

// Fetcher performs network requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Worker.
type Options struct {
	Storage domain.CacheStorage
	Names   domain.StoreNames
	Origin  *url.URL

	MediaHosts  []string
	APIPrefix   string
	AssetPrefix string
	Shell       []string
	OfflinePage string

	Client   Fetcher
	Observer domain.ResponseObserver
	Notifier domain.Notifier
	Logger   *slog.Logger

	// Now is the clock used for snapshot timestamps.
	Now func() time.Time
}

// Worker intercepts requests for one origin and one store version. It owns
// the handles of its three stores and applies a caching policy per request.
type Worker struct {
	storage     domain.CacheStorage
	names       domain.StoreNames
	origin      *url.URL
	mediaHosts  []string
	apiPrefix   string
	assetPrefix string
	shell       []string
	offlinePage string

	client   Fetcher
	observer domain.ResponseObserver
	notifier domain.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	state       domain.WorkerState
	skipWaiting bool
	controlling bool
	stores      map[domain.StoreRole]domain.Cache
}

// New creates a worker in the parsed state.
func New(opts Options) (*Worker, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("cache storage is required")
	}
	if opts.Origin == nil || opts.Origin.Scheme == "" || opts.Origin.Host == "" {
		return nil, fmt.Errorf("absolute origin URL is required")
	}
	if _, err := domain.NewStoreNames(opts.Names.Prefix, opts.Names.Version); err != nil {
		return nil, err
	}

	w := &Worker{
		storage:     opts.Storage,
		names:       opts.Names,
		origin:      &url.URL{Scheme: strings.ToLower(opts.Origin.Scheme), Host: strings.ToLower(opts.Origin.Host)},
		mediaHosts:  opts.MediaHosts,
		apiPrefix:   opts.APIPrefix,
		assetPrefix: opts.AssetPrefix,
		shell:       opts.Shell,
		offlinePage: opts.OfflinePage,
		client:      opts.Client,
		observer:    opts.Observer,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		now:         opts.Now,
		stores:      make(map[domain.StoreRole]domain.Cache),
	}

	if w.mediaHosts == nil {
		w.mediaHosts = DefaultMediaHosts
	}
	if w.apiPrefix == "" {
		w.apiPrefix = DefaultAPIPrefix
	}
	if w.assetPrefix == "" {
		w.assetPrefix = DefaultAssetPrefix
	}
	if w.shell == nil {
		w.shell = DefaultShell
	}
	if w.offlinePage == "" {
		w.offlinePage = DefaultOfflinePage
	}
	if w.client == nil {
		w.client = http.DefaultClient
	}
	if w.observer == nil {
		w.observer = domain.NoOpObserver{}
	}
	if w.notifier == nil {
		w.notifier = discardNotifier{}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}

	w.logger = w.logger.With("version", w.names.Version)
	return w, nil
}

// Version returns the version identifier baked into this worker's store names.
func (w *Worker) Version() string {
	return w.names.Version
}

// Names returns this worker's store names.
func (w *Worker) Names() domain.StoreNames {
	return w.names
}

// Origin returns the origin this worker intercepts.
func (w *Worker) Origin() *url.URL {
	u := *w.origin
	return &u
}

// State returns the current lifecycle state.
func (w *Worker) State() domain.WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(state domain.WorkerState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
	w.logger.Debug("worker state changed", "state", state.String())
}

// Controlling reports whether the worker has claimed clients and intercepts requests.
func (w *Worker) Controlling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.controlling && w.state == domain.StateActivated
}

// store returns the handle for a role, opening the store on first use.
func (w *Worker) store(role domain.StoreRole) (domain.Cache, error) {
	w.mu.RLock()
	c, ok := w.stores[role]
	w.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := w.storage.Open(w.names.Name(role))
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.stores[role] = c
	w.mu.Unlock()
	return c, nil
}

// resolve returns the absolute same-origin URL for a path.
func (w *Worker) resolve(path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	return w.origin.ResolveReference(ref)
}

// Fetch handles one request the way a controlling worker would: it either
// passes the request through untouched or answers it according to the policy
// of the route it classifies into. req.URL must be absolute.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !w.Controlling() {
		return nil, domain.ErrNotActive
	}

	route := w.Classify(req)
	switch route {
	case domain.RouteAPI:
		return w.networkFirst(ctx, req, route, domain.RoleAPI, w.apiFallback)
	case domain.RouteAsset:
		return w.cacheFirst(ctx, req, route, domain.RoleStatic)
	case domain.RouteMedia:
		return w.cacheFirst(ctx, req, route, domain.RoleMedia)
	case domain.RoutePage:
		return w.networkFirst(ctx, req, route, domain.RoleStatic, w.pageFallback)
	default:
		return w.passthrough(ctx, req)
	}
}
