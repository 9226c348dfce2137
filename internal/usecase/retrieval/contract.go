package retrieval

import (
	"context"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// CandidateScanner lists every stored embedding for a provider.
type CandidateScanner interface {
	ScanCandidates(ctx context.Context, provider domain.ProviderID) ([]domain.Candidate, error)
}

// ProviderResolver picks the provider for the current request.
type ProviderResolver interface {
	ActiveProvider() (domain.ProviderID, bool)
}
