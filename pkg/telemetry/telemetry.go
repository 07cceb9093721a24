package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and gauges for the two channels and the store. Registered on the
// default registry and served via promhttp on /metrics.
var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annotated_sessions_created_total",
		Help: "Browser sessions created over the push channel.",
	})

	AnnotationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annotated_annotations_created_total",
		Help: "Annotations created.",
	})

	RepliesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annotated_replies_added_total",
		Help: "Conversation replies appended.",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annotated_tool_calls_total",
		Help: "Agent tool invocations, by tool name.",
	}, []string{"tool"})

	ToolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annotated_tool_errors_total",
		Help: "Agent tool invocations that returned an in-band error, by tool name.",
	}, []string{"tool"})

	SyncBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annotated_sync_broadcasts_total",
		Help: "Full-snapshot sync messages pushed to browser clients.",
	})

	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annotated_ws_dropped_messages_total",
		Help: "Inbound push-channel messages dropped (malformed, unknown type or rate limited).",
	})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "annotated_ws_connections",
		Help: "Currently open push-channel connections.",
	})

	StoreWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annotated_store_writes_total",
		Help: "Completed store mutations (full-file rewrites).",
	})

	StoreWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annotated_store_write_errors_total",
		Help: "Store mutations that failed.",
	})
)
