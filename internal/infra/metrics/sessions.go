package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		sessionsCreatedTotal,
		sessionsTotal,
		queriesByDomain,
	)
}

var (
	sessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_created_total",
			Help: "Total number of sessions created by this process.",
		},
	)

	sessionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_total",
			Help: "Current number of stored sessions.",
		},
	)

	queriesByDomain = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_queries_by_domain",
			Help: "Stored user queries per classified domain.",
		},
		[]string{"domain"}, // 'os', 'database', 'webserver', 'general'
	)
)

func IncSessionsCreated() {
	sessionsCreatedTotal.Inc()
}

func SetSessionsTotal(n int) {
	sessionsTotal.Set(float64(n))
}

func SetQueriesByDomain(counts map[string]int) {
	for domain, n := range counts {
		queriesByDomain.WithLabelValues(norm(domain)).Set(float64(n))
	}
}
