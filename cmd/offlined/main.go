package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/mmcdole/offlined/internal/config"
	"github.com/mmcdole/offlined/internal/domain"
	"github.com/mmcdole/offlined/internal/log"
	"github.com/mmcdole/offlined/internal/notify"
	"github.com/mmcdole/offlined/internal/proxy"
	"github.com/mmcdole/offlined/internal/store"
	"github.com/mmcdole/offlined/internal/worker"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc/pool"
)

// Version is set at build time via -ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Handle version flag
	var showVersion bool
	var configFile string
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configFile, "config", "", "config file (default searches ~/.config/offlined and .)")
	flag.Parse()

	if showVersion {
		fmt.Printf("offlined %s\n", Version)
		return
	}

	if err := run(configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	// Load configuration
	loader := config.NewLoader(configFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting offlined", "version", Version, "config", loader.ConfigFile())

	origin, err := cfg.OriginURL()
	if err != nil {
		return err
	}

	storage, err := store.Open(cfg.Cache.Dir, origin.String())
	if errors.Is(err, store.ErrLocked) {
		return fmt.Errorf("cache %s is in use by another offlined process", cfg.Cache.Dir)
	}
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer storage.Close()
	logger.Info("cache opened", "path", storage.Path())

	metrics := proxy.NewWorkerMetric()
	registry := prom.NewRegistry()
	registry.MustRegister(metrics.GetMetrics()...)
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := newUpstreamClient(cfg.Upstream.Timeout)
	hub := notify.NewHub(logger)
	reg := worker.NewRegistration(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := &deployer{
		reg:     reg,
		storage: storage,
		origin:  origin,
		client:  client,
		metrics: metrics,
		hub:     hub,
		logger:  logger,
	}
	// Without a worker the proxy still serves the app online.
	if err := d.deploy(ctx, cfg); err != nil {
		logger.Error("worker registration failed", "error", err)
	}

	d.watch(ctx, loader)

	proxyServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           proxy.NewHandler(reg, origin, client, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminServer := &http.Server{
		Addr:              cfg.Server.AdminListen,
		Handler:           proxy.NewAdmin(reg, storage, hub, registry, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()
	for _, srv := range []*http.Server{proxyServer, adminServer} {
		p.Go(func(context.Context) error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(proxyServer.Shutdown(shutdownCtx), adminServer.Shutdown(shutdownCtx))
	})

	return p.Wait()
}

// newUpstreamClient returns the client used for network requests. Redirects
// are handed back to the browser rather than followed.
func newUpstreamClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// deployer registers worker versions as the configuration changes.
type deployer struct {
	reg     *worker.Registration
	storage domain.CacheStorage
	origin  *url.URL
	client  worker.Fetcher
	metrics *proxy.WorkerMetric
	hub     *notify.Hub
	logger  *slog.Logger

	mu      sync.Mutex
	current config.CacheConfig
	hosts   []string
}

func (d *deployer) deploy(ctx context.Context, cfg *config.Config) error {
	names, err := cfg.StoreNames()
	if err != nil {
		return err
	}

	w, err := d.reg.Register(ctx, worker.Options{
		Storage:     d.storage,
		Names:       names,
		Origin:      d.origin,
		MediaHosts:  cfg.Server.MediaHosts,
		APIPrefix:   cfg.Cache.APIPrefix,
		AssetPrefix: cfg.Cache.AssetPrefix,
		Shell:       cfg.Cache.Shell,
		OfflinePage: cfg.Cache.OfflinePage,
		Client:      d.client,
		Observer:    d.metrics,
		Notifier:    d.hub,
		Logger:      d.logger,
	})
	if err != nil {
		// A failed first install may have resumed the recorded version.
		if active := d.reg.Active(); active != nil {
			d.metrics.ObserveActivation(active.Version())
		}
		return err
	}

	d.mu.Lock()
	d.current = cfg.Cache
	d.hosts = cfg.Server.MediaHosts
	d.mu.Unlock()
	d.metrics.ObserveActivation(w.Version())
	return nil
}

// watch reloads on every valid edit of the loaded config file.
func (d *deployer) watch(ctx context.Context, loader *config.Loader) {
	if loader.ConfigFile() == "" {
		return
	}
	loader.Watch(func(next *config.Config) {
		d.reload(ctx, next)
	}, func(err error) {
		d.logger.Warn("ignoring invalid config change", "error", err)
	})
}

// reload registers a new worker when the worker-facing settings changed.
// Listener, origin and cache dir changes need a restart.
func (d *deployer) reload(ctx context.Context, cfg *config.Config) {
	d.mu.Lock()
	unchanged := d.current.Version == cfg.Cache.Version &&
		d.current.Prefix == cfg.Cache.Prefix &&
		d.current.APIPrefix == cfg.Cache.APIPrefix &&
		d.current.AssetPrefix == cfg.Cache.AssetPrefix &&
		d.current.OfflinePage == cfg.Cache.OfflinePage &&
		slices.Equal(d.current.Shell, cfg.Cache.Shell) &&
		slices.Equal(d.hosts, cfg.Server.MediaHosts)
	d.mu.Unlock()
	if unchanged {
		return
	}

	if origin, err := cfg.OriginURL(); err == nil && origin.String() != d.origin.String() {
		d.logger.Warn("origin change requires a restart", "origin", origin.String())
	}

	d.logger.Info("config changed, registering worker", "version", cfg.Cache.Version)
	if err := d.deploy(ctx, cfg); err != nil {
		d.logger.Error("worker registration failed", "version", cfg.Cache.Version, "error", err)
	}
}
