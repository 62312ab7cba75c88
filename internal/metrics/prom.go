package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crm_build_info",
			Help: "Build information",
		},
		[]string{"date", "sha", "version"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "HTTP requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_rpc_requests_total",
			Help: "JSON-RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_sessions_active",
			Help: "Streaming sessions currently registered",
		},
	)

	streamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_stream_events_total",
			Help: "Stream events delivered to consumers",
		},
		[]string{"kind"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_lookups_total",
			Help: "Response cache lookups",
		},
		[]string{"outcome"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_backend_call_duration_seconds",
			Help:    "Execution service call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, httpRequests, rpcRequests, activeSessions, streamEvents, cacheLookups, backendDuration)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordHTTPRequest increments the request counter for an endpoint.
func RecordHTTPRequest(endpoint string, success bool) {
	httpRequests.WithLabelValues(endpoint, outcome(success)).Inc()
}

// RecordRPCRequest increments the JSON-RPC request counter for a method.
func RecordRPCRequest(method string, success bool) {
	rpcRequests.WithLabelValues(method, outcome(success)).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { activeSessions.Dec() }

// RecordStreamEvent counts one delivered stream event.
func RecordStreamEvent(kind string) {
	streamEvents.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	o := "miss"
	if hit {
		o = "hit"
	}
	cacheLookups.WithLabelValues(o).Inc()
}

// ObserveBackendCall records the duration of one execution service call.
func ObserveBackendCall(op string, success bool, d time.Duration) {
	backendDuration.WithLabelValues(op, outcome(success)).Observe(d.Seconds())
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
