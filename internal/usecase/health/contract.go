package health

import (
	"context"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// Pinger checks availability of a storage dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionValidator checks embedding provider availability.
type ConnectionValidator interface {
	ID() domain.ProviderID
	ValidateConnection(ctx context.Context) bool
}
