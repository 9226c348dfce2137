// Package bootstrap assembles embedding provider chains shared by the server, the index CLI and the Engine.
package bootstrap

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/config"
	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/metrics"
	"github.com/kailas-cloud/failrag/internal/repository/embcache"
	"github.com/kailas-cloud/failrag/internal/transport/gemini"
	openaiEmb "github.com/kailas-cloud/failrag/internal/transport/openai"
	"github.com/kailas-cloud/failrag/internal/usecase/embedding"
)

// Purpose selects how a provider is tuned for the texts it embeds.
type Purpose int

// Purposes.
const (
	PurposeQuery Purpose = iota
	PurposeDocument
)

// ProviderSettings describes one configured provider.
type ProviderSettings struct {
	ID            domain.ProviderID
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	Timeout       time.Duration
	Retry         embedding.RetryPolicy
	ModelPrefixes []string
}

// Cache enables the query embedding cache on a chain.
type Cache struct {
	Store      embcache.Store
	TTL        time.Duration
	Generation *embcache.Generation
}

// SettingsFromConfig converts a provider config section.
func SettingsFromConfig(id domain.ProviderID, p config.ProviderConfig) ProviderSettings {
	return ProviderSettings{
		ID:         id,
		APIKey:     p.APIKey,
		BaseURL:    p.BaseURL,
		Model:      p.Model,
		Dimensions: p.Dimensions,
		Timeout:    time.Duration(p.TimeoutSec) * time.Second,
		Retry: embedding.RetryPolicy{
			MaxAttempts: p.Retry.MaxAttempts,
			BaseDelay:   time.Duration(p.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(p.Retry.MaxDelayMs) * time.Millisecond,
		},
		ModelPrefixes: p.ModelPrefixes,
	}
}

// ProvidersFromConfig returns settings for every provider with credentials, in provider order.
func ProvidersFromConfig(cfg *config.Config) []ProviderSettings {
	ids := cfg.ProviderIDs()
	out := make([]ProviderSettings, 0, len(ids))
	for _, id := range ids {
		out = append(out, SettingsFromConfig(id, cfg.Providers[string(id)]))
	}
	return out
}

// BuildProvider assembles transport -> cache (optional) -> retrying provider.
// cache is ignored for PurposeDocument.
func BuildProvider(s ProviderSettings, purpose Purpose, cache *Cache, logger *zap.Logger) (*embedding.Provider, error) {
	if s.Dimensions <= 0 {
		s.Dimensions = domain.DefaultDimension(s.ID)
	}

	var (
		transport domain.Embedder
		model     string
	)
	switch s.ID {
	case domain.ProviderOpenAI:
		e := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Timeout:    s.Timeout,
			Provider:   string(s.ID),
			Logger:     logger,
		})
		transport, model = e, e.Model()
	case domain.ProviderGemini:
		task := gemini.TaskRetrievalQuery
		if purpose == PurposeDocument {
			task = gemini.TaskRetrievalDocument
		}
		e := gemini.NewEmbedder(&gemini.Config{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Timeout:    s.Timeout,
			TaskType:   task,
			Provider:   string(s.ID),
			Logger:     logger,
		})
		transport, model = e, e.Model()
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, s.ID)
	}

	if cache != nil && cache.Store != nil && purpose == PurposeQuery {
		transport = embcache.New(transport, cache.Store, embcache.Config{
			Provider:   s.ID,
			Model:      model,
			TTL:        cache.TTL,
			Generation: cache.Generation,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	p, err := embedding.NewProvider(transport, embedding.Config{
		ID:             s.ID,
		Model:          model,
		Dimension:      s.Dimensions,
		Retry:          s.Retry,
		AttemptTimeout: s.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", s.ID, err)
	}
	return p, nil
}

// BuildProviders builds one chain per settings entry.
func BuildProviders(
	settings []ProviderSettings, purpose Purpose, cache *Cache, logger *zap.Logger,
) ([]*embedding.Provider, error) {
	out := make([]*embedding.Provider, 0, len(settings))
	for _, s := range settings {
		p, err := BuildProvider(s, purpose, cache, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Specs returns the storage specs for the given settings.
func Specs(settings []ProviderSettings) []domain.ProviderSpec {
	specs := make([]domain.ProviderSpec, 0, len(settings))
	for _, s := range settings {
		dim := s.Dimensions
		if dim <= 0 {
			dim = domain.DefaultDimension(s.ID)
		}
		specs = append(specs, domain.ProviderSpec{ID: s.ID, Dimension: dim})
	}
	return specs
}
