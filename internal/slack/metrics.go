package slack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cortex_slack_build_info",
			Help: "Build information of the Cortex sales Slack bot",
		},
		[]string{"version", "commit", "date"},
	)

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_events_received_total",
			Help: "Total number of Slack events received",
		},
		[]string{"event_type", "inner_event_type"},
	)

	EventsDuplicateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortex_slack_events_duplicate_total",
			Help: "Total number of duplicate events skipped",
		},
	)

	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_messages_processed_total",
			Help: "Total number of messages processed",
		},
		[]string{"channel_type", "is_dm", "is_channel"},
	)

	MessagesIgnoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_messages_ignored_total",
			Help: "Total number of messages ignored",
		},
		[]string{"reason"},
	)

	MessageProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cortex_slack_message_processing_duration_seconds",
			Help:    "Duration of message processing",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~205s (~3.4 minutes)
		},
	)

	MessagesPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_messages_posted_total",
			Help: "Total number of messages posted to Slack",
		},
		[]string{"status"},
	)

	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_interactions_total",
			Help: "Total number of interactive actions handled",
		},
		[]string{"action"},
	)

	AgentErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_agent_errors_total",
			Help: "Total number of query agent errors",
		},
		[]string{"error_type"},
	)

	QueryErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortex_slack_query_errors_total",
			Help: "Total number of warehouse query errors",
		},
	)

	SlackAPIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_api_errors_total",
			Help: "Total number of Slack API errors",
		},
		[]string{"operation"},
	)

	RefinementChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_slack_refinement_checks_total",
			Help: "Total number of prompt refinement checks",
		},
		[]string{"verdict"},
	)

	StoredResults = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cortex_slack_stored_results",
			Help: "Number of result states held for interactive messages",
		},
	)
)
