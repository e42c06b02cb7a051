package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements every hook interface on top of Prometheus collectors.
type Metrics struct {
	CacheEvents         *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RegistrySoftFails   prometheus.Counter
	RegistryVersions    *prometheus.GaugeVec
	RosterChanges       *prometheus.CounterVec
	ReconcileRuns       *prometheus.CounterVec
	ReconcileDuration   prometheus.Histogram

	registry *prometheus.Registry
}

var (
	_ CacheHooks    = (*Metrics)(nil)
	_ HTTPHooks     = (*Metrics)(nil)
	_ RegistryHooks = (*Metrics)(nil)
	_ RosterHooks   = (*Metrics)(nil)
)

// NewMetrics creates the collectors and registers them with registry.
// A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		CacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgpulse_cache_events_total",
				Help: "Cache hits, misses and writes by key type",
			},
			[]string{"event", "type"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgpulse_http_requests_total",
				Help: "Outgoing HTTP requests by host and status (\"error\" for transport failures)",
			},
			[]string{"host", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkgpulse_http_request_duration_seconds",
				Help:    "Outgoing HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		),
		RegistrySoftFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pkgpulse_registry_soft_failures_total",
				Help: "Registry sub-pages skipped because they could not be fetched",
			},
		),
		RegistryVersions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pkgpulse_registry_versions",
				Help: "Versions collected by the last traversal per package",
			},
			[]string{"package"},
		),
		RosterChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgpulse_roster_changes_total",
				Help: "Roster accounts classified by reconciliation",
			},
			[]string{"kind"},
		),
		ReconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgpulse_reconcile_runs_total",
				Help: "Reconciliation passes by outcome",
			},
			[]string{"outcome"},
		),
		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pkgpulse_reconcile_duration_seconds",
				Help:    "Reconciliation pass duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.CacheEvents,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RegistrySoftFails,
		m.RegistryVersions,
		m.RosterChanges,
		m.ReconcileRuns,
		m.ReconcileDuration,
	)
	return m
}

// Install registers m as the global cache, HTTP, registry and roster hooks.
func (m *Metrics) Install() {
	SetCacheHooks(m)
	SetHTTPHooks(m)
	SetRegistryHooks(m)
	SetRosterHooks(m)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.CacheEvents.WithLabelValues("hit", keyType).Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.CacheEvents.WithLabelValues("miss", keyType).Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, _ int) {
	m.CacheEvents.WithLabelValues("set", keyType).Inc()
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(host, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(host).Observe(duration.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.HTTPRequestsTotal.WithLabelValues(host, "error").Inc()
}

func (m *Metrics) OnPageSoftFailure(context.Context, string, string, error) {
	m.RegistrySoftFails.Inc()
}

func (m *Metrics) OnTraversalComplete(_ context.Context, pkg string, _, _, versions int, _ time.Duration) {
	m.RegistryVersions.WithLabelValues(pkg).Set(float64(versions))
}

func (m *Metrics) OnReconcileComplete(_ context.Context, _ string, counts RosterCounts, duration time.Duration, err error) {
	m.ReconcileDuration.Observe(duration.Seconds())
	if err != nil {
		m.ReconcileRuns.WithLabelValues("error").Inc()
		return
	}
	m.ReconcileRuns.WithLabelValues("success").Inc()
	m.RosterChanges.WithLabelValues("new").Add(float64(counts.New))
	m.RosterChanges.WithLabelValues("departed").Add(float64(counts.Departed))
	m.RosterChanges.WithLabelValues("reactivated").Add(float64(counts.Reactivated))
}
