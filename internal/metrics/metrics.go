// Package metrics holds the Prometheus collectors of the order service.
// Every method is nil-safe so components can run without metrics wired.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	OrdersCreated  prometheus.Counter
	OrdersRejected *prometheus.CounterVec
	CreateDuration prometheus.Histogram
	MintAttempts   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Orders committed with their stock decrements.",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_rejected_total",
			Help: "Order requests that ended without a commit, by reason.",
		}, []string{"reason"}),
		CreateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "order_create_duration_seconds",
			Help:    "Wall time of one order-creation transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		MintAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "id_mint_attempts_total",
			Help: "Sequential id mint attempts by family and result.",
		}, []string{"family", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.OrdersCreated, m.OrdersRejected, m.CreateDuration, m.MintAttempts,
		m.HTTPRequests, m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) OrderCreated(d time.Duration) {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
	m.CreateDuration.Observe(d.Seconds())
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) MintAttempt(family, result string) {
	if m == nil {
		return
	}
	m.MintAttempts.WithLabelValues(family, result).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
