package worker

import (
	"net/http"
	"strings"

	"github.com/mmcdole/offlined/internal/domain"
)

// Classify returns the route a request falls into. Rules are evaluated in
// order and the first match wins:
//
//  1. API prefix      -> network-first against the API store
//  2. asset prefix    -> cache-first against the static store
//  3. media host      -> cache-first against the media store
//  4. anything else   -> network-first page handling against the static store
//
// Non-GET requests and requests to foreign hosts are RouteNone.
func (w *Worker) Classify(req *http.Request) domain.Route {
	if req.Method != http.MethodGet || req.URL == nil {
		return domain.RouteNone
	}

	u := req.URL
	sameOrigin := w.sameOrigin(u.Scheme, u.Host)
	media := w.isMediaHost(u.Hostname())
	if !sameOrigin && !media {
		return domain.RouteNone
	}

	switch {
	case strings.HasPrefix(u.Path, w.apiPrefix):
		return domain.RouteAPI
	case strings.HasPrefix(u.Path, w.assetPrefix):
		return domain.RouteAsset
	case media:
		return domain.RouteMedia
	default:
		return domain.RoutePage
	}
}

func (w *Worker) sameOrigin(scheme, host string) bool {
	return strings.EqualFold(scheme, w.origin.Scheme) &&
		normalizeHost(scheme, host) == normalizeHost(w.origin.Scheme, w.origin.Host)
}

// isMediaHost matches a configured media host or any of its subdomains.
func (w *Worker) isMediaHost(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	for _, h := range w.mediaHosts {
		h = strings.ToLower(h)
		if hostname == h || strings.HasSuffix(hostname, "."+h) {
			return true
		}
	}
	return false
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case strings.EqualFold(scheme, "http") && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case strings.EqualFold(scheme, "https") && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}
