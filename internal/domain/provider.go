package domain

import (
	"fmt"
	"regexp"
)

// ProviderID identifies an embedding provider.
type ProviderID string

// Supported embedding providers.
const (
	ProviderOpenAI ProviderID = "openai"
	ProviderGemini ProviderID = "gemini"
)

// ProviderOrder is the order in which providers are tried when inferring one from credentials.
var ProviderOrder = []ProviderID{ProviderOpenAI, ProviderGemini}

// DefaultDimension returns the fixed output dimension of a provider's default model.
// Returns 0 for unknown providers.
func DefaultDimension(id ProviderID) int {
	switch id {
	case ProviderOpenAI:
		return 1536
	case ProviderGemini:
		return 3072
	default:
		return 0
	}
}

// IsKnown reports whether id is a supported provider.
func (id ProviderID) IsKnown() bool {
	return DefaultDimension(id) > 0
}

// ProviderSpec fixes the embedding dimension for a provider.
type ProviderSpec struct {
	ID        ProviderID
	Dimension int
}

var providerIDRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks that the spec can back a storage column.
func (s ProviderSpec) Validate() error {
	if !providerIDRe.MatchString(string(s.ID)) {
		return fmt.Errorf("%w: provider id %q must match %s", ErrInvalidArgument, s.ID, providerIDRe)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: provider %q dimension must be positive, got %d",
			ErrInvalidArgument, s.ID, s.Dimension)
	}
	return nil
}

// DefaultProviderSpecs returns specs for all supported providers at their default dimensions.
func DefaultProviderSpecs() []ProviderSpec {
	specs := make([]ProviderSpec, 0, len(ProviderOrder))
	for _, id := range ProviderOrder {
		specs = append(specs, ProviderSpec{ID: id, Dimension: DefaultDimension(id)})
	}
	return specs
}
