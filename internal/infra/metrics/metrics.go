// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		turnsSubmittedTotal,
		turnsRejectedTotal,
		repliesTotal,
		replyDelayMs,
		composingSessions,
	)
}

var (
	turnsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_submitted_total",
			Help: "Accepted user submissions per classified domain.",
		},
		[]string{"domain"},
	)

	turnsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_rejected_total",
			Help: "Submissions that were not accepted, by reason.",
		},
		[]string{"reason"}, // 'empty', 'rate_limited', 'unknown_session'
	)

	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_replies_total",
			Help: "Assistant replies appended per domain and whether they carried a trace.",
		},
		[]string{"domain", "traced"},
	)

	replyDelayMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_reply_delay_ms",
			Help:    "Simulated thinking delay distribution in milliseconds.",
			Buckets: []float64{250, 500, 1000, 1250, 1500, 1750, 2000, 3000, 5000},
		},
	)

	composingSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_composing_sessions",
			Help: "Sessions that currently have a reply pending.",
		},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Turn helpers --------

func IncTurnSubmitted(domain string) {
	turnsSubmittedTotal.WithLabelValues(norm(domain)).Inc()
}

func IncTurnRejected(reason string) {
	turnsRejectedTotal.WithLabelValues(norm(reason)).Inc()
}

func ObserveReply(domain string, traced bool) {
	repliesTotal.WithLabelValues(norm(domain), strconv.FormatBool(traced)).Inc()
}

func ObserveReplyDelay(d time.Duration) {
	replyDelayMs.Observe(float64(d.Milliseconds()))
}

func SetComposing(composing bool) {
	if composing {
		composingSessions.Inc()
		return
	}
	composingSessions.Dec()
}
