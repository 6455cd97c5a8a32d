package domain

// WorkerState is the lifecycle state of one worker version.
type WorkerState int

const (
	StateParsed WorkerState = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s WorkerState) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Source records where an intercepted response came from. It is never
// exposed to the page, only to logs and metrics.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceFallback    Source = "fallback"
	SourcePassthrough Source = "passthrough"
	SourceError       Source = "error"
)

// Route names the classification rule that matched a request.
type Route string

const (
	RouteNone  Route = "none"
	RouteAPI   Route = "api"
	RouteAsset Route = "asset"
	RouteMedia Route = "media"
	RoutePage  Route = "page"
)

// ResponseObserver receives one event per fetch handled by a worker.
type ResponseObserver interface {
	ObserveResponse(route Route, source Source)
	ObserveEviction(store string)
}

// NoOpObserver discards events (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) ObserveResponse(Route, Source) {}
func (NoOpObserver) ObserveEviction(string)        {}
