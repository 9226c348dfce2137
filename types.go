package failrag

import "github.com/kailas-cloud/failrag/internal/domain"

// ProviderID identifies an embedding provider.
type ProviderID = domain.ProviderID

// Supported providers.
const (
	ProviderOpenAI = domain.ProviderOpenAI
	ProviderGemini = domain.ProviderGemini
)

// QueryType describes where a query came from.
type QueryType string

// Query types.
const (
	QueryUser            QueryType = QueryType(domain.QueryUser)
	QueryFailureAnalysis QueryType = QueryType(domain.QueryFailureAnalysis)
)

// Mode selects how much of each hit is rendered.
type Mode string

// Render modes.
const (
	ModeOverview Mode = Mode(domain.ModeOverview)
	ModeDetailed Mode = Mode(domain.ModeDetailed)
)

// HealthStatus represents the aggregated engine health.
type HealthStatus struct {
	Status string            // "ok", "degraded"
	Checks map[string]string // component → "ok"/"error"
}
