package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command metrics
var (
	// CommandsTotal counts handled commands by verb and final dispatcher state
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emotepoll_commands_total",
			Help: "Handled commands by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	// EventsTotal counts inbound events by type
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emotepoll_events_total",
			Help: "Inbound events by type",
		},
		[]string{"type"},
	)

	// EventsDropped counts events discarded because a worker queue was full or the dispatcher stopped
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emotepoll_events_dropped_total",
			Help: "Inbound events that could not be queued",
		},
	)

	// EventDuration tracks time spent handling a single event
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emotepoll_event_duration_seconds",
			Help:    "Event handling duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"type"},
	)
)

// Vote metrics
var (
	// VotesTotal counts reaction events by action (record/revoke) and result (applied/ignored)
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emotepoll_votes_total",
			Help: "Vote reactions by action and result",
		},
		[]string{"action", "result"},
	)

	// Candidates tracks the number of registered candidates
	Candidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "emotepoll_candidates",
			Help: "Registered candidates across all scopes",
		},
	)
)

// Outbound and persistence metrics
var (
	// SendFailures counts outbound render requests that failed, by kind
	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emotepoll_send_failures_total",
			Help: "Failed outbound messages by kind",
		},
		[]string{"kind"},
	)

	// FlushTotal counts registry flushes to the store by status
	FlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emotepoll_store_flush_total",
			Help: "Registry flushes by status",
		},
		[]string{"status"},
	)
)
