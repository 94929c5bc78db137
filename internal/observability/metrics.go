// Package observability holds the store-level Prometheus metrics shared by every
// binary.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowsCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "persistence",
		Name:      "rows_committed_total",
		Help:      "Rows written by committed transactions, labeled by table.",
	}, []string{"table"})

	importPhases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "imports",
		Name:      "phases_total",
		Help:      "Audited import phases, labeled by source and status.",
	}, []string{"source", "status"})

	lastImportGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vitals",
		Subsystem: "imports",
		Name:      "last_import_timestamp_seconds",
		Help:      "Unix timestamp of the most recent audited import, labeled by source.",
	}, []string{"source"})

	routeLinkedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vitals",
		Subsystem: "persistence",
		Name:      "last_route_linked_timestamp_seconds",
		Help:      "Unix timestamp of the most recent route linked to a workout.",
	})
)

func init() {
	prometheus.MustRegister(rowsCommitted, importPhases, lastImportGauge, routeLinkedGauge)
}

// RecordRowsCommitted counts rows persisted to table.
func RecordRowsCommitted(table string, n int) {
	if n <= 0 {
		return
	}
	rowsCommitted.WithLabelValues(table).Add(float64(n))
}

// RecordImportCompleted counts an audited phase and moves the source watermark.
func RecordImportCompleted(source, status string, ts time.Time) {
	importPhases.WithLabelValues(source, status).Inc()
	if ts.IsZero() {
		return
	}
	lastImportGauge.WithLabelValues(source).Set(float64(ts.Unix()))
}

// RecordRouteLinked updates the route link watermark gauge.
func RecordRouteLinked(ts time.Time) {
	if ts.IsZero() {
		return
	}
	routeLinkedGauge.Set(float64(ts.Unix()))
}
