package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Proxy captures GitHub client activity.
type Proxy interface {
	ObserveRequest(kind, status string, durationSeconds float64)
	IncCache(result string)
	SetRateLimit(limit, remaining int)
	IncBatch(source string)
}

// Registry captures registry persistence activity.
type Registry interface {
	IncRegistryOp(op, result string)
	ObserveLockWait(seconds float64)
}

// Noop implements Proxy and Registry without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, float64) {}
func (Noop) IncCache(string)                        {}
func (Noop) SetRateLimit(int, int)                  {}
func (Noop) IncBatch(string)                        {}
func (Noop) IncRegistryOp(string, string)           {}
func (Noop) ObserveLockWait(float64)                {}

// Prom implements Proxy and Registry backed by Prometheus collectors.
type Prom struct {
	requests    *prometheus.HistogramVec
	cache       *prometheus.CounterVec
	rateLimit   *prometheus.GaugeVec
	batches     *prometheus.CounterVec
	registryOps *prometheus.CounterVec
	lockWait    prometheus.Histogram
	once        sync.Once
	registerer  prometheus.Registerer
}

// NewProm registers collectors on reg, or the default registerer when reg is nil.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "github_request_duration_seconds",
			Help:      "GitHub API round trips by kind and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "status"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_cache_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		rateLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "github_rate_limit",
			Help:      "Last reported GitHub rate limit values",
		}, []string{"field"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_batch_total",
			Help:      "Batch metadata fetches by serving source",
		}, []string{"source"}),
		registryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_operations_total",
			Help:      "Registry operations by op and result",
		}, []string{"op", "result"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_lock_wait_seconds",
			Help:      "Time spent acquiring the registry lock file",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5},
		}),
		registerer: reg,
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		p.registerer.MustRegister(p.requests, p.cache, p.rateLimit, p.batches, p.registryOps, p.lockWait)
	})
}

func (p *Prom) ObserveRequest(kind, status string, durationSeconds float64) {
	p.requests.WithLabelValues(kind, status).Observe(durationSeconds)
}

func (p *Prom) IncCache(result string) {
	p.cache.WithLabelValues(result).Inc()
}

func (p *Prom) SetRateLimit(limit, remaining int) {
	p.rateLimit.WithLabelValues("limit").Set(float64(limit))
	p.rateLimit.WithLabelValues("remaining").Set(float64(remaining))
}

func (p *Prom) IncBatch(source string) {
	p.batches.WithLabelValues(source).Inc()
}

func (p *Prom) IncRegistryOp(op, result string) {
	p.registryOps.WithLabelValues(op, result).Inc()
}

func (p *Prom) ObserveLockWait(seconds float64) {
	p.lockWait.Observe(seconds)
}
