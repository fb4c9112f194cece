// Package metrics holds the Prometheus collectors and HTTP instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and embedding Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashbox",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"kind", "status"}, // kind: search / quick / more
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stashbox",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	StrategyResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashbox",
			Name:      "strategy_results_total",
			Help:      "Match results produced per strategy",
		},
		[]string{"strategy"},
	)

	StrategyDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashbox",
			Name:      "strategy_degraded_total",
			Help:      "Times a strategy was skipped due to failure or timeout",
		},
		[]string{"strategy", "reason"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashbox",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stashbox",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashbox",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model", "type"},
	)

	SessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stashbox",
			Name:      "search_sessions_live",
			Help:      "Search sessions currently held in the pagination store",
		},
	)

	IndexVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stashbox",
			Name:      "index_vectors",
			Help:      "Vectors currently held in the semantic index",
		},
	)
)

// Register registers all engine metrics explicitly (no init()).
func Register() {
	prometheus.MustRegister(
		SearchRequestsTotal,
		SearchDuration,
		StrategyResultsTotal,
		StrategyDegradedTotal,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		SessionsLive,
		IndexVectors,
	)
}
