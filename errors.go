package failrag

import "github.com/kailas-cloud/failrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidArgument  = domain.ErrInvalidArgument
	ErrSnapshotNotFound = domain.ErrSnapshotNotFound
	ErrDataIntegrity    = domain.ErrDataIntegrity
	ErrUnknownProvider  = domain.ErrUnknownProvider
	ErrStoreClosed      = domain.ErrStoreClosed
)
