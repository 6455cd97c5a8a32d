// Package proxy exposes the active worker to browsers over HTTP.
//
// Origin-form requests ("GET /memos") are resolved against the configured
// origin, so the browser can load the app straight through the proxy.
// Absolute-form requests ("GET http://i.ytimg.com/vi/x.jpg") are forwarded,
// which lets the browser use the proxy for media hosts too. CONNECT requests
// are tunnelled without interception.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/offlined/internal/domain"
	"github.com/mmcdole/offlined/internal/worker"
	"github.com/sourcegraph/conc"
)

// RequestIDHeader carries the request ID back to the browser.
const RequestIDHeader = "X-Offlined-Request-Id"

const dialTimeout = 10 * time.Second

// Handler serves browser traffic through the active worker, or straight to
// the network while no worker is active.
type Handler struct {
	reg    *worker.Registration
	origin *url.URL
	client worker.Fetcher
	logger *slog.Logger
}

// NewHandler creates a proxy handler for origin.
func NewHandler(reg *worker.Registration, origin *url.URL, client worker.Fetcher, logger *slog.Logger) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reg:    reg,
		origin: origin,
		client: client,
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	logger := h.logger.With("request_id", id)

	if r.Method == http.MethodConnect {
		h.tunnel(w, r, logger)
		return
	}

	start := time.Now()
	out, err := h.outbound(r)
	if err != nil {
		logger.Warn("rejecting request", "url", r.URL.String(), "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, err := h.fetch(r.Context(), out)
	if err != nil {
		logger.Warn("request failed", "method", out.Method, "url", out.URL.String(), "error", err)
		w.Header().Set(RequestIDHeader, id)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vv := range resp.Header {
		header[k] = append([]string(nil), vv...)
	}
	worker.RemoveHopHeaders(header)
	header.Set(RequestIDHeader, id)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debug("failed to write response body", "error", err)
	}
	logger.Debug("request handled",
		"method", out.Method,
		"url", out.URL.String(),
		"status", resp.StatusCode,
		"duration", time.Since(start))
}

// fetch hands the request to the active worker. A worker retired between
// Active and Fetch answers ErrNotActive; the request then passes through.
func (h *Handler) fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if w := h.reg.Active(); w != nil {
		resp, err := w.Fetch(ctx, req)
		if !errors.Is(err, domain.ErrNotActive) {
			return resp, err
		}
	}
	return h.client.Do(req)
}

// outbound builds the absolute request the worker sees.
func (h *Handler) outbound(r *http.Request) (*http.Request, error) {
	var target *url.URL
	if r.URL.IsAbs() {
		u := *r.URL
		target = &u
	} else {
		target = h.origin.ResolveReference(&url.URL{
			Path:     r.URL.Path,
			RawPath:  r.URL.RawPath,
			RawQuery: r.URL.RawQuery,
		})
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, errors.New("unsupported scheme " + target.Scheme)
	}

	var body io.Reader
	if r.ContentLength != 0 {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	worker.RemoveHopHeaders(out.Header)
	out.ContentLength = r.ContentLength
	return out, nil
}

// tunnel relays a CONNECT request byte for byte. TLS traffic cannot be
// inspected, so it never reaches the worker.
func (h *Handler) tunnel(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	upstream, err := net.DialTimeout("tcp", r.Host, dialTimeout)
	if err != nil {
		logger.Warn("tunnel dial failed", "host", r.Host, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer upstream.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		logger.Warn("hijack failed", "error", err)
		return
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		logger.Debug("failed to confirm tunnel", "error", err)
		return
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		io.Copy(upstream, clientConn)
		closeWrite(upstream)
	})
	wg.Go(func() {
		io.Copy(clientConn, upstream)
		closeWrite(clientConn)
	})
	wg.Wait()
	logger.Debug("tunnel closed", "host", r.Host)
}

func closeWrite(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}
}
