// Package metrics provides Prometheus instrumentation for the Ventline
// chat service. It exposes gauges for queue depth and session counts,
// counters for message and feedback throughput, and a histogram for match
// wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WaitingQueueSize tracks the current number of users in the waiting queue.
	WaitingQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ventline_waiting_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// ActiveSessions tracks the current number of active chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ventline_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// MessagesTotal counts messages processed, labeled by outcome:
	// "sent", "seed", or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ventline_messages_total",
		Help: "Total number of messages processed",
	}, []string{"outcome"})

	// MatchWaitSeconds records how long a consumed waiting entry sat in
	// the queue before being seated.
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ventline_match_wait_seconds",
		Help:    "Time a waiting user spent queued before being matched",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
	})

	// FeedbackTotal counts feedback submissions, labeled by feeling.
	FeedbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ventline_feedback_total",
		Help: "Total number of feedback submissions",
	}, []string{"feeling"})

	// StreamSubscribers tracks the current number of open message streams.
	StreamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ventline_stream_subscribers",
		Help: "Current number of open message stream subscriptions",
	})
)

func init() {
	prometheus.MustRegister(
		WaitingQueueSize,
		ActiveSessions,
		MessagesTotal,
		MatchWaitSeconds,
		FeedbackTotal,
		StreamSubscribers,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
