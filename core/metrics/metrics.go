// Package metrics exposes Prometheus collectors for the bot runtime and a small
// operational HTTP listener serving /metrics and /healthz.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "surveybot"

var (
	// Registry holds every collector exported by the process.
	Registry = prometheus.NewRegistry()

	// HandlerDuration observes handler latency by handler name and outcome.
	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "handler_duration_seconds",
		Help:      "Latency of Telegram update handlers.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler", "outcome"})

	// MessagesSent counts outbound Telegram messages by handler.
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "messages_sent_total",
		Help:      "Outbound messages produced by handlers.",
	}, []string{"handler"})

	// SendFailures counts outbound Telegram calls that gave up, by failure kind.
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "send_failures_total",
		Help:      "Outbound Telegram calls that failed after retries.",
	}, []string{"kind"})

	// BackendRequests counts backend API calls by operation and status class.
	BackendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Backend API requests by operation and result.",
	}, []string{"op", "result"})

	// BackendDuration observes backend API latency by operation.
	BackendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Latency of backend API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// Transitions counts dialogue state transitions.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dialog",
		Name:      "transitions_total",
		Help:      "Dialogue state transitions.",
	}, []string{"from", "to"})

	// ActiveSessions reports sessions currently held in memory.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dialog",
		Name:      "active_sessions",
		Help:      "Conversations with an active flow.",
	})

	// AccessDenied counts updates refused by the allow-list gate.
	AccessDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "access",
		Name:      "denied_total",
		Help:      "Updates refused by the allow-list.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HandlerDuration,
		MessagesSent,
		SendFailures,
		BackendRequests,
		BackendDuration,
		Transitions,
		ActiveSessions,
		AccessDenied,
	)
}

// ResultLabel folds an HTTP status (or transport failure when status is 0) into a low-cardinality label.
func ResultLabel(status int) string {
	switch {
	case status == 0:
		return "transport_error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
