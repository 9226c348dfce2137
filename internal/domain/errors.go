package domain

import "errors"

var (
	// ErrInvalidArgument signals input rejected before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownProvider signals a provider the component was not configured with.
	ErrUnknownProvider = errors.New("unknown embedding provider")
	// ErrDataIntegrity signals stored data that violates a schema invariant.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrSnapshotNotFound signals a missing packaged corpus snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrReadOnlyStore signals a write against a store loaded from a snapshot.
	ErrReadOnlyStore = errors.New("store is read-only")
	// ErrStoreClosed signals use of an uninitialized or closed store.
	ErrStoreClosed = errors.New("store is not open")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrProviderRejected signals a provider response that retrying cannot fix (auth, bad request).
	ErrProviderRejected = errors.New("embedding request rejected")
	// ErrEmbeddingGeneration signals that all embedding attempts failed.
	ErrEmbeddingGeneration = errors.New("embedding generation failed")
)

// RejectedStatus reports whether an HTTP status from a provider is a client error
// that retrying will not fix. 408 and 429 stay retryable.
func RejectedStatus(status int) bool {
	if status == 408 || status == 429 {
		return false
	}
	return status >= 400 && status < 500
}
