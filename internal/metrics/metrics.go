// Package metrics holds the service's Prometheus collectors. Everything is
// registered on the default registry and served through promhttp in cmd/api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LogAppends counts rows appended to the event log, by room.
	LogAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomlog_log_appends_total",
		Help: "Rows appended to the attendance log.",
	}, []string{"room"})

	// RowsParsed counts raw rows successfully normalized into events.
	RowsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomlog_rows_parsed_total",
		Help: "Log rows normalized into canonical events.",
	})

	// RowsDiscarded counts malformed rows dropped during normalization.
	RowsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomlog_rows_discarded_total",
		Help: "Log rows discarded as malformed or unparseable.",
	})

	// ClassificationFallbacks counts reasons that matched neither the entry
	// nor the exit list and fell back to the fail-safe entry classification.
	// A rising rate indicates taxonomy drift.
	ClassificationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomlog_classification_fallbacks_total",
		Help: "Reason strings classified as entry by the fail-safe default.",
	})

	// SyncFailures counts failed counter replication operations, by op.
	SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomlog_sync_failures_total",
		Help: "Failed push/pull operations against the counter sync service.",
	}, []string{"op"})
)
