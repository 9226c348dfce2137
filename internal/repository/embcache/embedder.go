package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/db"
	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/domain/vector"
)

const (
	cacheKeyPrefix = "failrag:emb_cache:"

	// DefaultTTL bounds how long a query embedding is reused.
	DefaultTTL = 5 * time.Minute
)

// Store is the consumer interface for the embedding cache (ISP).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Generation is the cache-key epoch. Bumping it makes every earlier entry unreachable.
// One Generation may be shared by several embedders.
type Generation struct {
	n atomic.Uint64
}

// Bump starts a new epoch.
func (g *Generation) Bump() { g.n.Add(1) }

// Current returns the active epoch.
func (g *Generation) Current() uint64 { return g.n.Load() }

// Config identifies the cached embedder's keyspace.
type Config struct {
	Provider domain.ProviderID
	Model    string
	// TTL defaults to DefaultTTL when zero.
	TTL time.Duration
	// Generation defaults to a private epoch when nil.
	Generation *Generation
}

// CachedEmbedder caches embeddings in a key-value store.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      Store
	provider   domain.ProviderID
	model      string
	ttl        time.Duration
	gen        *Generation
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with labels "provider" and "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s Store,
	cfg Config,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Generation == nil {
		cfg.Generation = &Generation{}
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		provider:   cfg.Provider,
		model:      cfg.Model,
		ttl:        cfg.TTL,
		gen:        cfg.Generation,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

// Invalidate drops every entry written so far.
func (c *CachedEmbedder) Invalidate() {
	c.gen.Bump()
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(string(c.provider), result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + strconv.FormatUint(c.gen.Current(), 10) + ":" +
		string(c.provider) + ":" + c.model + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := vector.Decode(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, vector.Encode(vec), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}
