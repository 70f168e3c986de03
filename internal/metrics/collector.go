// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/transport"
)

// Collector holds the Prometheus instruments for the dispatch pipeline.
// It registers against an injectable Registerer so tests can use isolated
// registries instead of the process-global default.
type Collector struct {
	// HTTP surface
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Pipeline
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Agent calls
	agentCallsTotal   *prometheus.CounterVec
	agentCallFailures *prometheus.CounterVec

	// Catalog cache
	catalogRefreshes *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a Collector registered against reg. A nil reg uses
// the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of processed dispatch requests",
		},
		[]string{"intent", "status"},
	)

	c.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end pipeline duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"intent"},
	)

	c.agentCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Total number of agent calls",
		},
		[]string{"agent", "transport", "status"},
	)

	c.agentCallFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_call_failures_total",
			Help:      "Total number of failed agent calls by error kind",
		},
		[]string{"agent", "kind"},
	)

	c.catalogRefreshes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refreshes_total",
			Help:      "Total number of catalog refresh attempts",
		},
		[]string{"status"},
	)

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveRequest records one completed pipeline run.
func (c *Collector) ObserveRequest(intent string, hadErrors bool, duration time.Duration) {
	status := "ok"
	if hadErrors {
		status = "degraded"
	}
	c.requestsTotal.WithLabelValues(intent, status).Inc()
	c.requestDuration.WithLabelValues(intent).Observe(duration.Seconds())
}

// ObserveAgentCall records one agent call outcome.
func (c *Collector) ObserveAgentCall(agentID string, served transport.Kind, failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	c.agentCallsTotal.WithLabelValues(agentID, string(served), status).Inc()
}

// RecordAgentCallFailure records the error kind of a failed agent call.
func (c *Collector) RecordAgentCallFailure(agentID string, kind transport.ErrorKind) {
	c.agentCallFailures.WithLabelValues(agentID, string(kind)).Inc()
}

// RecordCatalogRefresh records one catalog refresh attempt.
func (c *Collector) RecordCatalogRefresh(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	c.catalogRefreshes.WithLabelValues(status).Inc()
}
