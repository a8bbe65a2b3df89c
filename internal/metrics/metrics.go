// Package metrics defines the Prometheus metrics for the decision loop.
//
// Exposed series:
//   - trader_decisions_total{strategy,direction} - logged decisions
//   - trader_cycle_fallbacks_total{reason}       - cycles converted to WAIT by a fault
//   - trader_confidence_band_total{band}         - confidence gate outcomes
//   - trader_resolutions_total{reason}           - decisions resolved by exit reason
//   - trader_reward                              - distribution of final rewards
//   - trader_open_positions / trader_pending_waits
//   - trader_retrain_runs_total{outcome}         - pipeline runs by outcome
//   - trader_policy_version                      - published policy table version
//   - trader_backups_total{result}
//
// Metrics are registered in init() and served at /metrics by internal/server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Decisions logged to the experience store",
		},
		[]string{"strategy", "direction"},
	)

	CycleFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_cycle_fallbacks_total",
			Help: "Cycles that failed safe into a WAIT",
		},
		[]string{"reason"}, // validation, panic, storage
	)

	ConfidenceBands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_confidence_band_total",
			Help: "Confidence gate outcomes by band",
		},
		[]string{"band"},
	)

	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_resolutions_total",
			Help: "Decisions resolved, by exit reason",
		},
		[]string{"reason"},
	)

	Rewards = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trader_reward",
			Help:    "Final rewards assigned at resolution",
			Buckets: []float64{-5, -2, -1, -0.5, 0, 0.05, 0.5, 1, 2, 5},
		},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Trades awaiting resolution",
		},
	)

	PendingWaits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_pending_waits",
			Help: "WAIT decisions awaiting resolution",
		},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetrainRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_retrain_runs_total",
			Help: "Retraining pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	PolicyVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_policy_version",
			Help: "Version of the published policy table",
		},
	)

	Backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_backups_total",
			Help: "Offsite backup attempts by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		Decisions,
		CycleFallbacks,
		ConfidenceBands,
		Resolutions,
		Rewards,
		OpenPositions,
		PendingWaits,
		CycleDuration,
		RetrainRuns,
		PolicyVersion,
		Backups,
	)
}
