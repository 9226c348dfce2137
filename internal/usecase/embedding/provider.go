package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/metrics"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = time.Second
	DefaultMaxDelay       = 10 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

const connectionProbeText = "connection test"

// Compile-time check: Provider implements domain.EmbeddingProvider.
var _ domain.EmbeddingProvider = (*Provider)(nil)

// RetryPolicy bounds how failed attempts are repeated.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the delay before retry number attempt (0-based): BaseDelay doubled per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Config describes one provider.
type Config struct {
	ID             domain.ProviderID
	Model          string
	Dimension      int
	Retry          RetryPolicy
	AttemptTimeout time.Duration
}

// Provider applies input validation, retry with backoff, and dimension checks
// on top of a transport embedder.
type Provider struct {
	inner          domain.Embedder
	id             domain.ProviderID
	model          string
	dimension      int
	retry          RetryPolicy
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewProvider wraps a transport embedder.
func NewProvider(inner domain.Embedder, cfg Config, logger *zap.Logger) (*Provider, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: embedder is required", domain.ErrInvalidArgument)
	}
	if err := (domain.ProviderSpec{ID: cfg.ID, Dimension: cfg.Dimension}).Validate(); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = DefaultBaseDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = DefaultMaxDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		inner:          inner,
		id:             cfg.ID,
		model:          cfg.Model,
		dimension:      cfg.Dimension,
		retry:          cfg.Retry,
		attemptTimeout: cfg.AttemptTimeout,
		logger:         logger,
	}, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() domain.ProviderID { return p.id }

// Dimension returns the configured vector length.
func (p *Provider) Dimension() int { return p.dimension }

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// GenerateEmbedding embeds text, retrying transient failures.
// A vector of unexpected length is logged and returned unchanged; callers decide.
func (p *Provider) GenerateEmbedding(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: text must not be blank", domain.ErrInvalidArgument)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.retry.Backoff(attempt - 1)
			metrics.EmbeddingRetriesTotal.WithLabelValues(string(p.id)).Inc()
			p.logger.Debug("Retrying embedding request",
				zap.String("provider", string(p.id)),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return domain.EmbeddingResult{}, p.failure(attempt, err)
			}
		}

		res, err := p.attempt(ctx, text)
		if err == nil {
			p.checkDimension(res.Embedding)
			p.logger.Debug("Embedding generated",
				zap.String("provider", string(p.id)),
				zap.String("model", p.model),
				zap.Int("attempts", attempt+1),
				zap.Duration("duration", time.Since(start)),
				zap.Int("dimensions", len(res.Embedding)),
				zap.Int("total_tokens", res.TotalTokens),
			)
			return res, nil
		}
		lastErr = err

		if !p.retryable(ctx, err) {
			return domain.EmbeddingResult{}, p.failure(attempt+1, err)
		}
	}

	return domain.EmbeddingResult{}, p.failure(p.retry.MaxAttempts, lastErr)
}

// ValidateConnection reports whether the provider can currently produce an embedding.
func (p *Provider) ValidateConnection(ctx context.Context) bool {
	_, err := p.GenerateEmbedding(ctx, connectionProbeText)
	if err != nil {
		p.logger.Warn("Embedding provider connection check failed",
			zap.String("provider", string(p.id)), zap.Error(err))
	}
	return err == nil
}

func (p *Provider) attempt(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	res, err := p.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	if len(res.Embedding) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding: %w", domain.ErrEmbeddingProviderError)
	}
	return res, nil
}

// retryable is false once the caller's context is done or the provider rejected the request.
// A per-attempt timeout with the caller still waiting is retried.
func (p *Provider) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, domain.ErrProviderRejected)
}

func (p *Provider) checkDimension(vec []float32) {
	if len(vec) == p.dimension {
		return
	}
	metrics.EmbeddingDimensionMismatchTotal.WithLabelValues(string(p.id)).Inc()
	p.logger.Warn("Embedding dimension differs from configuration",
		zap.String("provider", string(p.id)),
		zap.String("model", p.model),
		zap.Int("expected", p.dimension),
		zap.Int("actual", len(vec)),
	)
}

func (p *Provider) failure(attempts int, err error) error {
	p.logger.Warn("Embedding generation failed",
		zap.String("provider", string(p.id)),
		zap.String("model", p.model),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s after %d attempt(s): %w", domain.ErrEmbeddingGeneration, p.id, attempts, err)
}

// sleep waits for d on a timer, returning early with ctx.Err() on cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
