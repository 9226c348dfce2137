package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval outcomes.
const (
	OutcomeHit         = "hit"
	OutcomeEmpty       = "empty"
	OutcomeNoProvider  = "no_provider"
	OutcomeEmbedError  = "embed_error"
	OutcomeDimMismatch = "dim_mismatch"
	OutcomeStoreError  = "store_error"
	OutcomePanic       = "panic"
)

// Retrieval Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "failrag",
			Name:      "retrieval_requests_total",
			Help:      "Retrieval requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "failrag",
			Name:      "retrieval_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)
)

var retrievalMetricsOnce sync.Once

// RegisterRetrievalMetrics registers Prometheus retrieval metrics on the default registry. Safe to call repeatedly.
func RegisterRetrievalMetrics() {
	retrievalMetricsOnce.Do(func() {
		prometheus.MustRegister(RetrievalRequestsTotal)
		prometheus.MustRegister(RetrievalDuration)
	})
}
