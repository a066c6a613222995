package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync runs by outcome: success, failed
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_sync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"status"},
	)

	MessagesSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_messages_synced_total",
			Help: "Total number of new messages persisted by sync",
		},
		[]string{"folder"},
	)

	// Per-message failures inside a sync batch; stage: fetch, parse
	MessageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_message_failures_total",
			Help: "Total number of messages skipped during sync",
		},
		[]string{"stage"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsync_sync_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_emails_sent_total",
			Help: "Total number of outbound messages by outcome",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordSyncRun(status string, duration time.Duration) {
	SyncRuns.WithLabelValues(status).Inc()
	SyncDuration.Observe(duration.Seconds())
}

func AddMessagesSynced(folder string, n int) {
	if n > 0 {
		MessagesSynced.WithLabelValues(folder).Add(float64(n))
	}
}

func IncrementMessageFailure(stage string) {
	MessageFailures.WithLabelValues(stage).Inc()
}

func IncrementEmailsSent(status string) {
	EmailsSent.WithLabelValues(status).Inc()
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
