// Package metrics exposes Prometheus collectors for the bot service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	botMessagesTotal           *prometheus.CounterVec
	botRepliesTotal            *prometheus.CounterVec
	agentRequestsTotal         *prometheus.CounterVec
	agentRequestDuration       prometheus.Histogram
	agentToolCallsTotal        *prometheus.CounterVec
	reportUploadsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		botMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_messages_total",
				Help: "Total number of inbound webhook messages, labeled by kind.",
			},
			[]string{"kind"},
		)

		botRepliesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_replies_total",
				Help: "Total number of robot replies sent, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		agentRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_requests_total",
				Help: "Total number of LLM assistant invocations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		agentRequestDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_request_duration_seconds",
				Help:    "Histogram of LLM assistant round-trip latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		agentToolCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tool_calls_total",
				Help: "Total number of tool invocations, labeled by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		)

		reportUploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_uploads_total",
				Help: "Total number of report blob uploads, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMessage increments the inbound message counter.
func ObserveMessage(kind string) {
	Init()
	botMessagesTotal.WithLabelValues(kind).Inc()
}

// ObserveReply increments the reply counter for the given outcome.
func ObserveReply(ok bool) {
	Init()
	botRepliesTotal.WithLabelValues(outcome(ok)).Inc()
}

// ObserveAgentRequest records one assistant round trip.
func ObserveAgentRequest(ok bool, duration time.Duration) {
	Init()
	agentRequestsTotal.WithLabelValues(outcome(ok)).Inc()
	agentRequestDuration.Observe(duration.Seconds())
}

// ObserveToolCall increments the tool invocation counter.
func ObserveToolCall(tool string, ok bool) {
	Init()
	agentToolCallsTotal.WithLabelValues(tool, outcome(ok)).Inc()
}

// ObserveReportUpload increments the report upload counter.
func ObserveReportUpload(ok bool) {
	Init()
	reportUploadsTotal.WithLabelValues(outcome(ok)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
