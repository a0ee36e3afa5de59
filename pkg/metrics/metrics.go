// Package metrics defines the engine's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ScenarioFiresTotal counts threshold crossings that passed all vetoes
	// and reached the dispatcher.
	ScenarioFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_scenario_fires_total",
			Help: "Total number of scenario fires dispatched",
		},
		[]string{"scenario_id"},
	)

	// FireVetoesTotal counts threshold crossings suppressed by an
	// idempotency or throttling rule.
	FireVetoesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_fire_vetoes_total",
			Help: "Total number of scenario fires vetoed, by reason",
		},
		[]string{"scenario_id", "reason"},
	)

	// ActionsExecutedTotal counts individual action executions by kind and
	// outcome.
	ActionsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_actions_executed_total",
			Help: "Total number of actions executed, by kind and status",
		},
		[]string{"scenario_id", "kind", "status"},
	)
)

// Register registers all engine collectors with the given registry.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		ScenarioFiresTotal,
		FireVetoesTotal,
		ActionsExecutedTotal,
	)
}
