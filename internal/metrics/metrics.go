// Package metrics exposes export and remote API metrics to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/lockexport/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lockexport"

// Recorder reports export and remote request metrics using Prometheus
// primitives. It implements core.Metrics.
type Recorder struct {
	exports        *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
	exportRows     *prometheus.HistogramVec
	remoteRequests *prometheus.CounterVec
	remoteDuration prometheus.Histogram
	decodeFailures prometheus.Counter
}

var _ core.Metrics = (*Recorder)(nil)

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewRecorder creates the collectors and registers them with registry.
func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &Recorder{
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Total number of exports by scope and outcome",
		}, []string{"scope", "status"}),
		exportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of completed exports in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"scope"}),
		exportRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_rows",
			Help:      "Number of rows in successful exports",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}, []string{"scope"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests sent to the lock platform API by status class",
		}, []string{"status_class"}),
		remoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Latency of lock platform API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_id_decode_failures_total",
			Help:      "Physical lock ids that could not be decoded",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.exports, r.exportDuration, r.exportRows,
		r.remoteRequests, r.remoteDuration, r.decodeFailures,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// ObserveExport records one export outcome. Rejected exports never ran, so
// only the counter moves for them.
func (r *Recorder) ObserveExport(kind core.ScopeKind, status string, rows int, duration time.Duration) {
	scope := string(kind)
	r.exports.WithLabelValues(scope, status).Inc()
	if status == core.StatusRejected {
		return
	}
	r.exportDuration.WithLabelValues(scope).Observe(duration.Seconds())
	if status == core.StatusSuccess {
		r.exportRows.WithLabelValues(scope).Observe(float64(rows))
	}
}

// IncDecodeFailure counts one undecodable physical lock id.
func (r *Recorder) IncDecodeFailure() {
	r.decodeFailures.Inc()
}

// ObserveRemoteRequest records one remote API call. status 0 means no
// response was received.
func (r *Recorder) ObserveRemoteRequest(status int, duration time.Duration) {
	r.remoteRequests.WithLabelValues(StatusClass(status)).Inc()
	r.remoteDuration.Observe(duration.Seconds())
}

// StatusClass buckets an HTTP status into "2xx", "4xx", ... or "error".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
