// Package observability exposes the Prometheus metrics the core
// publishes about its own health: detections rejected, track capacity
// pressure, filter reinitializations, subscriber lag, and alert
// throughput. Shaped like the teacher's broader
// internal/platform/observability package (promauto-registered vecs
// under one namespaced struct, a single constructor, a /metrics
// http.Handler), narrowed to the counters sections 4.6.6 and 4.7 of the
// spec require rather than the teacher's HTTP/websocket/satellite
// surface, which belongs to subsystems this module doesn't implement.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus instrument the c2 engine registers.
type Metrics struct {
	DetectionsRejected *prometheus.CounterVec // reason label: invalid_position | track_capacity
	TracksCreated      prometheus.Counter
	TracksDropped      prometheus.Counter
	FilterReinitCount  prometheus.Counter

	EventBusDropped *prometheus.CounterVec // topic label

	AlertsEmitted    prometheus.Counter
	AlertsSuppressed prometheus.Counter

	AssessmentErrors   prometheus.Counter
	AssessmentDuration prometheus.Histogram
}

// NewMetrics registers every instrument against reg and returns the
// populated struct. Pass prometheus.NewRegistry() in tests to avoid
// colliding with the default global registry across parallel runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DetectionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "trackmanager",
			Name:      "detections_rejected_total",
			Help:      "Detections rejected at ingress, by reason.",
		}, []string{"reason"}),
		TracksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "trackmanager",
			Name:      "tracks_created_total",
			Help:      "Tracks created since startup.",
		}),
		TracksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "trackmanager",
			Name:      "tracks_dropped_total",
			Help:      "Tracks transitioned to Dropped since startup.",
		}),
		FilterReinitCount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "trackmanager",
			Name:      "filter_reinit_total",
			Help:      "Smoothing filter reinitializations after a degenerate (NaN/Inf) state.",
		}),
		EventBusDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "eventbus",
			Name:      "subscriber_dropped_total",
			Help:      "Events dropped (drop-oldest) for a lagging subscriber, by topic.",
		}, []string{"topic"}),
		AlertsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "threat",
			Name:      "alerts_emitted_total",
			Help:      "Threat alerts appended to the alert queue.",
		}),
		AlertsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "threat",
			Name:      "alerts_suppressed_total",
			Help:      "Threat alerts suppressed by the 30s per-track de-dup window.",
		}),
		AssessmentErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "c2engine",
			Subsystem: "threat",
			Name:      "assessment_errors_total",
			Help:      "Per-track assessment panics recovered during a tick.",
		}),
		AssessmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "c2engine",
			Subsystem: "threat",
			Name:      "assessment_tick_seconds",
			Help:      "Wall-clock duration of one full assessment tick.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the standard promhttp handler, for callers that wire
// it into their own HTTP mux; the core itself performs no networking.
func Handler() http.Handler {
	return promhttp.Handler()
}
