package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mmcdole/offlined/internal/domain"
)

// fallbackFunc answers a request whose network attempt failed.
type fallbackFunc func(req *http.Request, c domain.Cache, key string) (*http.Response, domain.Source)

// passthrough sends the request on unmodified and never opens a store.
func (w *Worker) passthrough(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := w.client.Do(req.WithContext(ctx))
	if err != nil {
		w.observer.ObserveResponse(domain.RouteNone, domain.SourceError)
		return nil, err
	}
	w.observer.ObserveResponse(domain.RouteNone, domain.SourcePassthrough)
	return resp, nil
}

// cacheFirst serves a stored response when present and otherwise goes to the
// network, storing successful responses. Network failures are returned to the
// caller; there is no synthesized fallback on this path.
func (w *Worker) cacheFirst(ctx context.Context, req *http.Request, route domain.Route, role domain.StoreRole) (*http.Response, error) {
	c, err := w.store(role)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", role, err)
	}

	key := domain.RequestKey(req.Method, req.URL)
	if snap, ok := c.Match(key); ok {
		w.observer.ObserveResponse(route, domain.SourceCache)
		return responseFrom(req, snap), nil
	}

	snap, err := w.fetchSnapshot(ctx, req)
	if err != nil {
		w.logger.Info("failed to fetch uncached asset", "route", route, "url", req.URL.String(), "error", err)
		w.observer.ObserveResponse(route, domain.SourceError)
		return nil, err
	}

	w.put(req, c, key, snap)
	w.observer.ObserveResponse(route, domain.SourceNetwork)
	return responseFrom(req, snap), nil
}

// networkFirst goes to the network and stores successful responses; when the
// network is unreachable it answers through fallback.
func (w *Worker) networkFirst(ctx context.Context, req *http.Request, route domain.Route, role domain.StoreRole, fallback fallbackFunc) (*http.Response, error) {
	c, err := w.store(role)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", role, err)
	}

	key := domain.RequestKey(req.Method, req.URL)
	snap, err := w.fetchSnapshot(ctx, req)
	if err == nil {
		w.put(req, c, key, snap)
		w.observer.ObserveResponse(route, domain.SourceNetwork)
		return responseFrom(req, snap), nil
	}

	w.logger.Info("network failed, trying cache", "route", route, "url", req.URL.String(), "error", err)
	resp, source := fallback(req, c, key)
	w.observer.ObserveResponse(route, source)
	return resp, nil
}

// apiFallback serves the stored API response or the offline JSON envelope.
func (w *Worker) apiFallback(req *http.Request, c domain.Cache, key string) (*http.Response, domain.Source) {
	if snap, ok := c.Match(key); ok {
		return responseFrom(req, snap), domain.SourceCache
	}
	return responseFrom(req, offlineAPISnapshot()), domain.SourceFallback
}

// pageFallback tries, in order: the exact page, the cached root document (for
// client-side routed paths), the cached offline page, and finally the
// built-in offline document.
func (w *Worker) pageFallback(req *http.Request, c domain.Cache, key string) (*http.Response, domain.Source) {
	if snap, ok := c.Match(key); ok {
		return responseFrom(req, snap), domain.SourceCache
	}
	if snap, ok := c.Match(domain.RequestKey(http.MethodGet, w.resolve("/"))); ok {
		return responseFrom(req, snap), domain.SourceCache
	}
	if snap, ok := c.Match(domain.RequestKey(http.MethodGet, w.resolve(w.offlinePage))); ok {
		return responseFrom(req, snap), domain.SourceCache
	}
	return responseFrom(req, offlinePageSnapshot()), domain.SourceFallback
}

// fetchSnapshot performs the network request and buffers the response. A
// transport error, or a body that cannot be read to the end, is a network
// failure. Any HTTP status is a network success.
func (w *Worker) fetchSnapshot(ctx context.Context, req *http.Request) (*domain.Snapshot, error) {
	resp, err := w.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrNetwork, err)
	}

	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Del("Content-Length")
	RemoveHopHeaders(header)

	return &domain.Snapshot{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: w.now().UTC(),
	}, nil
}

// put stores complete successful responses only. The key ignores Range, so
// partial content, and anything fetched for a ranged request, is never
// stored. Storage errors are logged, never surfaced to the page.
func (w *Worker) put(req *http.Request, c domain.Cache, key string, snap *domain.Snapshot) {
	if !snap.OK() || snap.Status == http.StatusPartialContent || req.Header.Get("Range") != "" {
		return
	}
	if err := c.Put(key, snap); err != nil {
		w.logger.Warn("failed to store response", "store", c.Name(), "key", key, "error", err)
	}
}

// responseFrom builds a fresh response from a snapshot. Every call returns an
// independent body.
func responseFrom(req *http.Request, snap *domain.Snapshot) *http.Response {
	header := snap.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", snap.Status, http.StatusText(snap.Status)),
		StatusCode:    snap.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(snap.Body)),
		ContentLength: int64(len(snap.Body)),
		Request:       req,
	}
}

// Hop-by-hop headers are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopHeaders deletes the hop-by-hop headers from h.
func RemoveHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
