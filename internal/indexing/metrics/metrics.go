package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles tracks completed poll iterations.
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_poll_cycles_total",
			Help: "Total number of completed poll iterations",
		},
	)

	// PollErrors tracks failed poll iterations (cursor not advanced).
	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_poll_errors_total",
			Help: "Total number of failed poll iterations",
		},
	)

	// EventsIndexed tracks events applied to the projection, per kind.
	EventsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_events_indexed_total",
			Help: "Total number of events stored and projected",
		},
		[]string{"kind"},
	)

	// UnknownEvents tracks events recorded but not projected.
	UnknownEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_unknown_events_total",
			Help: "Total number of events with unrecognized types",
		},
	)

	// ClaimsAppended tracks successful claim ledger appends.
	ClaimsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_claims_appended_total",
			Help: "Total number of claim ledger entries written",
		},
	)

	// ClaimsRejected tracks claims rejected by validation.
	ClaimsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_claims_rejected_total",
			Help: "Total number of claim requests rejected",
		},
	)

	// HTTPRequests tracks API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"route", "status"},
	)

	// DBConnectionPoolUsage tracks database pool saturation.
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
