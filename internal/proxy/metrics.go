package proxy

import (
	"log/slog"

	"github.com/mmcdole/offlined/internal/domain"
	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	ns           = "offlined"
	workerSubsys = "worker"
)

// WorkerMetric records what the worker did with each request. It implements
// domain.ResponseObserver.
type WorkerMetric struct {
	Responses  *prom.CounterVec
	Evictions  prom.Counter
	ActiveInfo *prom.GaugeVec
}

func NewWorkerMetric() *WorkerMetric {
	return &WorkerMetric{
		Responses: prom.NewCounterVec(
			prom.CounterOpts{
				Namespace: ns,
				Subsystem: workerSubsys,
				Name:      "responses_total",
				Help:      "Responses produced by the worker, by route and where the response came from",
			},
			[]string{"route", "source"},
		),
		Evictions: prom.NewCounter(
			prom.CounterOpts{
				Namespace: ns,
				Subsystem: workerSubsys,
				Name:      "store_evictions_total",
				Help:      "Stores deleted because they belonged to another version",
			},
		),
		ActiveInfo: prom.NewGaugeVec(
			prom.GaugeOpts{
				Namespace: ns,
				Subsystem: workerSubsys,
				Name:      "active_info",
				Help:      "Version of the worker currently controlling clients",
			},
			[]string{"version"},
		),
	}
}

func (m *WorkerMetric) ObserveResponse(route domain.Route, source domain.Source) {
	m.Responses.WithLabelValues(string(route), string(source)).Inc()
}

func (m *WorkerMetric) ObserveEviction(string) {
	m.Evictions.Inc()
}

// ObserveActivation marks version as the only active one.
func (m *WorkerMetric) ObserveActivation(version string) {
	m.ActiveInfo.Reset()
	m.ActiveInfo.WithLabelValues(version).Set(1)
}

func (m *WorkerMetric) GetMetrics() []prom.Collector {
	return []prom.Collector{
		m.Responses,
		m.Evictions,
		m.ActiveInfo,
	}
}

// promLogger routes promhttp errors to slog. Prometheus only logs errors
// that don't stop the scrape, so they are downgraded to warnings.
type promLogger struct {
	logger *slog.Logger
}

func (l promLogger) Println(v ...interface{}) {
	l.logger.Warn("metrics handler error", "detail", v)
}
