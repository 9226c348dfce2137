package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/logger"
	"github.com/kailas-cloud/failrag/internal/metrics"
	"github.com/kailas-cloud/failrag/internal/usecase/search"
)

// Defaults applied by New.
const (
	DefaultThreshold  = 0.7
	DefaultMaxResults = 3
	DefaultTimeout    = 30 * time.Second
)

// Service answers retrieval requests with a formatted documentation block.
// Every failure degrades to an empty string.
type Service struct {
	providers  map[domain.ProviderID]domain.EmbeddingProvider
	store      CandidateScanner
	resolver   ProviderResolver
	threshold  float64
	maxResults int
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a retrieval service.
func New(
	providers map[domain.ProviderID]domain.EmbeddingProvider,
	store CandidateScanner,
	resolver ProviderResolver,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		providers:  providers,
		store:      store,
		resolver:   resolver,
		threshold:  DefaultThreshold,
		maxResults: DefaultMaxResults,
		timeout:    DefaultTimeout,
		logger:     logger,
	}
}

// WithThreshold sets the minimum similarity a hit needs.
func (s *Service) WithThreshold(t float64) *Service {
	s.threshold = t
	return s
}

// WithMaxResults caps the number of hits rendered.
func (s *Service) WithMaxResults(n int) *Service {
	s.maxResults = n
	return s
}

// WithTimeout bounds embedding generation per request.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Retrieve returns relevant documentation for req, or "" when nothing applies or anything fails.
func (s *Service) Retrieve(ctx context.Context, req domain.RetrievalRequest) (out string) {
	start := time.Now()
	log := logger.FromContext(ctx, s.logger)
	provider := "none"
	outcome := metrics.OutcomeEmpty

	defer func() {
		if r := recover(); r != nil {
			log.Error("Retrieval panicked",
				zap.String("provider", provider), zap.Any("panic", r), zap.Stack("stack"))
			out, outcome = "", metrics.OutcomePanic
		}
		metrics.RetrievalRequestsTotal.WithLabelValues(provider, outcome).Inc()
		metrics.RetrievalDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	p, ok := s.activeProvider()
	if !ok {
		outcome = metrics.OutcomeNoProvider
		log.Debug("No embedding provider available, skipping retrieval")
		return ""
	}
	provider = string(p.ID())

	text := embeddingText(req)
	if text == "" {
		return ""
	}

	vec, err := s.embed(ctx, p, text)
	if err != nil {
		outcome = metrics.OutcomeEmbedError
		log.Warn("Query embedding failed, returning empty context",
			zap.String("provider", provider), zap.Error(err))
		return ""
	}
	if len(vec) != p.Dimension() {
		outcome = metrics.OutcomeDimMismatch
		log.Warn("Query embedding dimension mismatch, returning empty context",
			zap.String("provider", provider),
			zap.Int("expected", p.Dimension()),
			zap.Int("actual", len(vec)),
		)
		return ""
	}

	hits, err := s.rank(ctx, p.ID(), vec)
	if err != nil {
		outcome = metrics.OutcomeStoreError
		log.Warn("Document ranking failed, returning empty context",
			zap.String("provider", provider), zap.Error(err))
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	outcome = metrics.OutcomeHit
	log.Debug("Retrieved documentation",
		zap.String("provider", provider),
		zap.Int("hits", len(hits)),
		zap.Float64("top_score", hits[0].Score()),
	)
	return Format(hits, req.Type, req.Mode)
}

func (s *Service) activeProvider() (domain.EmbeddingProvider, bool) {
	if s.resolver == nil {
		return nil, false
	}
	id, ok := s.resolver.ActiveProvider()
	if !ok {
		return nil, false
	}
	p, ok := s.providers[id]
	if !ok || p == nil {
		s.logger.Debug("Resolved provider is not registered", zap.String("provider", string(id)))
		return nil, false
	}
	return p, true
}

func (s *Service) embed(ctx context.Context, p domain.EmbeddingProvider, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := p.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	return res.Embedding, nil
}

func (s *Service) rank(ctx context.Context, id domain.ProviderID, vec []float32) ([]domain.SearchHit, error) {
	candidates, err := s.store.ScanCandidates(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	hits, err := search.RankAndFilter(vec, candidates, s.threshold, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	return hits, nil
}

// embeddingText builds the text sent to the provider. Failure analysis appends the failure context.
func embeddingText(req domain.RetrievalRequest) string {
	query := strings.TrimSpace(req.Query)
	if req.Type == domain.QueryFailureAnalysis {
		if fc := strings.TrimSpace(req.FailureContext); fc != "" {
			if query == "" {
				return fc
			}
			return query + "\n\n" + fc
		}
	}
	return query
}
