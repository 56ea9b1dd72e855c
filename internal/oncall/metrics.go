package oncall

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "oncallbridge"

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oncall",
			Name:      "commands_total",
			Help:      "Accepted /oncall commands by orchestration outcome",
		},
		[]string{"outcome"},
	)

	trackedLinks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oncall",
			Name:      "tracked_links",
			Help:      "Number of incidents currently linked to conversations",
		},
	)

	pollTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oncall",
			Name:      "poll_ticks_total",
			Help:      "Total reconciliation ticks that processed at least one link",
		},
	)

	pollTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oncall",
			Name:      "poll_transitions_total",
			Help:      "Observed incident state transitions",
		},
		[]string{"terminal"},
	)

	pollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oncall",
			Name:      "poll_errors_total",
			Help:      "Links that failed to reconcile during a tick",
		},
	)
)

// recordOutcome records a finished orchestration.
func recordOutcome(outcome Outcome) {
	commandsTotal.WithLabelValues(string(outcome)).Inc()
}

// recordTransition records a propagated state change.
func recordTransition(terminal bool) {
	label := "false"
	if terminal {
		label = "true"
	}
	pollTransitions.WithLabelValues(label).Inc()
}
