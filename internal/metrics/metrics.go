// Package metrics exposes Prometheus counters for the sync and processing
// pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync metrics
var (
	MessagesSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rulemaster_messages_synced_total",
			Help: "Total number of messages fetched and stored",
		},
	)

	SyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulemaster_sync_failures_total",
			Help: "Total number of messages skipped during sync",
		},
		[]string{"stage"},
	)
)

// Processing metrics
var (
	RulesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulemaster_rules_matched_total",
			Help: "Total number of rule matches",
		},
		[]string{"rule_id"},
	)

	ActionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulemaster_actions_applied_total",
			Help: "Total number of actions applied on the provider",
		},
		[]string{"action_type"},
	)

	ActionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulemaster_action_failures_total",
			Help: "Total number of actions that failed on the provider",
		},
		[]string{"action_type"},
	)
)

// Run metrics
var (
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rulemaster_run_duration_seconds",
			Help:    "Duration of sync and process runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	RunErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulemaster_run_errors_total",
			Help: "Total number of runs that returned an error",
		},
		[]string{"pipeline"},
	)

	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rulemaster_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
		[]string{"pipeline"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
