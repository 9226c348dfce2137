package retrieval

import (
	"strings"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// DefaultModelPrefixes maps chat model name prefixes to the embedding provider of the same vendor.
var DefaultModelPrefixes = map[domain.ProviderID][]string{
	domain.ProviderOpenAI: {"gpt-", "o1", "o3", "o4", "chatgpt-", "text-embedding-"},
	domain.ProviderGemini: {"gemini-", "models/gemini-"},
}

// ProviderBinding describes what the resolver knows about one provider.
type ProviderBinding struct {
	ID             domain.ProviderID
	ModelPrefixes  []string
	HasCredentials bool
}

// ModelResolver maps the caller's default model to a provider.
// The model is read on every call so settings changes apply to the next request.
type ModelResolver struct {
	defaultModel func() string
	bindings     map[domain.ProviderID]ProviderBinding
	order        []domain.ProviderID
}

// NewModelResolver creates a resolver. defaultModel may be nil.
// Bindings without prefixes get DefaultModelPrefixes for their id.
func NewModelResolver(defaultModel func() string, bindings []ProviderBinding) *ModelResolver {
	r := &ModelResolver{
		defaultModel: defaultModel,
		bindings:     make(map[domain.ProviderID]ProviderBinding, len(bindings)),
	}
	for _, b := range bindings {
		if len(b.ModelPrefixes) == 0 {
			b.ModelPrefixes = DefaultModelPrefixes[b.ID]
		}
		r.bindings[b.ID] = b
	}

	// Known providers first, in credential-inference order; then the rest as given.
	for _, id := range domain.ProviderOrder {
		if _, ok := r.bindings[id]; ok {
			r.order = append(r.order, id)
		}
	}
	for _, b := range bindings {
		if !b.ID.IsKnown() {
			r.order = append(r.order, b.ID)
		}
	}
	return r
}

// ActiveProvider implements ProviderResolver.
func (r *ModelResolver) ActiveProvider() (domain.ProviderID, bool) {
	if id, ok := r.byModel(); ok {
		return id, true
	}
	for _, id := range r.order {
		if r.bindings[id].HasCredentials {
			return id, true
		}
	}
	return "", false
}

func (r *ModelResolver) byModel() (domain.ProviderID, bool) {
	if r.defaultModel == nil {
		return "", false
	}
	model := strings.ToLower(strings.TrimSpace(r.defaultModel()))
	if model == "" {
		return "", false
	}
	for _, id := range r.order {
		b := r.bindings[id]
		if !b.HasCredentials {
			continue
		}
		for _, p := range b.ModelPrefixes {
			if strings.HasPrefix(model, strings.ToLower(p)) {
				return id, true
			}
		}
	}
	return "", false
}

// StaticResolver always returns the same provider. An empty id means none.
type StaticResolver domain.ProviderID

// ActiveProvider implements ProviderResolver.
func (s StaticResolver) ActiveProvider() (domain.ProviderID, bool) {
	return domain.ProviderID(s), s != ""
}
