package domain

import "context"

// Embedder is the transport-level text vectorization contract.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingProvider is a provider with its retry policy and fixed dimension applied.
type EmbeddingProvider interface {
	ID() ProviderID
	Dimension() int
	GenerateEmbedding(ctx context.Context, text string) (EmbeddingResult, error)
	ValidateConnection(ctx context.Context) bool
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}
