package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "export",
		Name:      "duration_seconds",
		Help:      "Time spent writing a burst to a sink",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"kind"})

	exportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "export",
		Name:      "failures_total",
		Help:      "Sink writes that returned an error",
	}, []string{"kind"})
)

// ObserveExport records a sink write of the given kind.
func ObserveExport(kind string, elapsed time.Duration, err error) {
	exportDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		exportFailures.WithLabelValues(kind).Inc()
	}
}
