package routes

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeLinked   = "linked"
	outcomeUnlinked = "unlinked"
	outcomeError    = "error"
)

var routeOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vitals_route_files_total",
		Help: "Track files processed by the route matcher, by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(routeOutcomes)
}

func recordOutcome(outcome string) {
	routeOutcomes.WithLabelValues(outcome).Inc()
}
