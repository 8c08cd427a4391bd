// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chambers"

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	scanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scans",
			Name:      "runs_total",
			Help:      "Reminder scan runs by scan and outcome.",
		},
		[]string{"scan", "success"},
	)

	scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scans",
			Name:      "run_duration_seconds",
			Help:      "Duration of reminder scans.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"scan"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scans",
			Name:      "notifications_total",
			Help:      "Notifications created by reminder scans.",
		},
		[]string{"scan", "action"},
	)

	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "processed_total",
			Help:      "Background tasks processed by type and outcome.",
		},
		[]string{"type", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		scanRuns,
		scanDuration,
		notifications,
		tasks,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one request. path should be the route template, not
// the raw URL, to keep label cardinality bounded.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func ObserveScan(scan string, err error, d time.Duration) {
	scanRuns.WithLabelValues(scan, strconv.FormatBool(err == nil)).Inc()
	scanDuration.WithLabelValues(scan).Observe(d.Seconds())
}

func AddNotifications(scan, action string, n int) {
	if n > 0 {
		notifications.WithLabelValues(scan, action).Add(float64(n))
	}
}

func ObserveTask(taskType string, err error) {
	tasks.WithLabelValues(taskType, strconv.FormatBool(err == nil)).Inc()
}
