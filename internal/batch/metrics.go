package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "writer",
		Name:      "batches_total",
		Help:      "Number of flushed batches grouped by buffer and outcome.",
	}, []string{"buffer", "outcome"})

	committedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "writer",
		Name:      "items_committed_total",
		Help:      "Number of items persisted by committed batches.",
	}, []string{"buffer"})

	discardedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "writer",
		Name:      "items_discarded_total",
		Help:      "Number of items lost because their batch rolled back.",
	}, []string{"buffer"})

	flushDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vitals",
		Subsystem: "writer",
		Name:      "flush_duration_seconds",
		Help:      "Time spent inside one batch transaction.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"buffer"})
)

func init() {
	prometheus.MustRegister(batchCounter, committedCounter, discardedCounter, flushDuration)
}

func recordFlush(buffer string, n int, elapsed time.Duration, err error) {
	flushDuration.WithLabelValues(buffer).Observe(elapsed.Seconds())
	if err != nil {
		batchCounter.WithLabelValues(buffer, "failed").Inc()
		discardedCounter.WithLabelValues(buffer).Add(float64(n))
		return
	}
	batchCounter.WithLabelValues(buffer, "committed").Inc()
	committedCounter.WithLabelValues(buffer).Add(float64(n))
}
