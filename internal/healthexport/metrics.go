package healthexport

import "github.com/prometheus/client_golang/prometheus"

var (
	elementsParsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_export_elements_total",
			Help: "Export elements accepted by the parser, by element name",
		},
		[]string{"element"},
	)
	elementsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_export_elements_skipped_total",
			Help: "Export elements dropped for missing or invalid attributes",
		},
		[]string{"element"},
	)
)

func init() {
	prometheus.MustRegister(elementsParsed, elementsSkipped)
}

func recordElement(element string) {
	elementsParsed.WithLabelValues(element).Inc()
}

func recordSkipped(element string) {
	elementsSkipped.WithLabelValues(element).Inc()
}
