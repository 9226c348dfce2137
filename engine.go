package failrag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/bootstrap"
	"github.com/kailas-cloud/failrag/internal/db"
	dbRedis "github.com/kailas-cloud/failrag/internal/db/redis"
	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/metrics"
	documentrepo "github.com/kailas-cloud/failrag/internal/repository/document"
	"github.com/kailas-cloud/failrag/internal/repository/embcache"
	"github.com/kailas-cloud/failrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/failrag/internal/usecase/health"
	"github.com/kailas-cloud/failrag/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces swapped out in tests.
type retrievalUseCase interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest) string
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

type corpusStore interface {
	Reload(ctx context.Context) error
	Close() error
}

// Engine is the failrag entry point.
type Engine struct {
	store     corpusStore
	cache     db.Store
	gen       *embcache.Generation
	retrieval retrievalUseCase
	healthSvc healthUseCase
	obs       *observer

	stopWatch context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New loads the snapshot and wires the providers.
// The provided context is used for loading and the cache readiness check.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := &engineConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.snapshotPath == "" {
		return nil, errors.New("failrag: snapshot path required (use WithSnapshot)")
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	settings := providerSettings(cfg)

	var (
		cache      db.Store
		cacheChain *bootstrap.Cache
		gen        = &embcache.Generation{}
	)
	if len(cfg.cacheAddrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.cacheAddrs, Password: cfg.cachePassword})
		if err != nil {
			return nil, fmt.Errorf("failrag: create cache store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("failrag: cache not ready: %w", err)
		}
		cache = s
		cacheChain = &bootstrap.Cache{Store: s, TTL: cfg.cacheTTL, Generation: gen}
	}

	providers, err := bootstrap.BuildProviders(settings, bootstrap.PurposeQuery, cacheChain, logger)
	if err != nil {
		closeCache(cache)
		return nil, fmt.Errorf("failrag: %w", err)
	}

	store, err := documentrepo.New(bootstrap.Specs(settings), logger)
	if err != nil {
		closeCache(cache)
		return nil, fmt.Errorf("failrag: %w", err)
	}
	if err := store.InitializeReadOnly(ctx, cfg.snapshotPath); err != nil {
		closeCache(cache)
		return nil, fmt.Errorf("failrag: %w", err)
	}

	e := wireEngine(cfg, settings, providers, store, cache, gen, obs, logger)

	if cfg.watch {
		watchCtx, cancel := context.WithCancel(context.Background())
		e.stopWatch = cancel
		w := documentrepo.NewWatcher(store, cfg.snapshotPath, gen.Bump, logger)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := w.Run(watchCtx); err != nil {
				logger.Error("Snapshot watcher stopped", zap.Error(err))
			}
		}()
	}
	return e, nil
}

func providerSettings(cfg *engineConfig) []bootstrap.ProviderSettings {
	var out []bootstrap.ProviderSettings
	for _, id := range domain.ProviderOrder {
		p, ok := cfg.providers[id]
		if !ok || p.APIKey == "" {
			continue
		}
		out = append(out, bootstrap.ProviderSettings{
			ID:            id,
			APIKey:        p.APIKey,
			BaseURL:       p.BaseURL,
			Model:         p.Model,
			Dimensions:    p.Dimensions,
			Timeout:       p.Timeout,
			ModelPrefixes: p.ModelPrefixes,
		})
	}
	return out
}

func wireEngine(
	cfg *engineConfig,
	settings []bootstrap.ProviderSettings,
	providers []*embedding.Provider,
	store *documentrepo.Store,
	cache db.Store,
	gen *embcache.Generation,
	obs *observer,
	logger *zap.Logger,
) *Engine {
	byID := make(map[domain.ProviderID]domain.EmbeddingProvider, len(providers))
	validators := make([]healthuc.ConnectionValidator, 0, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
		validators = append(validators, p)
	}

	bindings := make([]retrieval.ProviderBinding, 0, len(settings))
	for _, s := range settings {
		bindings = append(bindings, retrieval.ProviderBinding{
			ID: s.ID, ModelPrefixes: s.ModelPrefixes, HasCredentials: s.APIKey != "",
		})
	}
	resolver := retrieval.NewModelResolver(cfg.defaultModel, bindings)

	svc := retrieval.New(byID, store, resolver, logger).WithTimeout(cfg.timeout)
	if cfg.threshold != nil {
		svc = svc.WithThreshold(*cfg.threshold)
	}
	if cfg.maxResults > 0 {
		svc = svc.WithMaxResults(cfg.maxResults)
	}

	// Typed nil pointers must not reach the health service as non-nil interfaces.
	var cachePinger healthuc.Pinger
	if cache != nil {
		cachePinger = cache
	}

	return &Engine{
		store:     store,
		cache:     cache,
		gen:       gen,
		retrieval: svc,
		healthSvc: healthuc.New(store, cachePinger, validators...),
		obs:       obs,
	}
}

// Retrieve returns formatted documentation for the query, or "" when nothing relevant is found.
//
// Arguments are validated before any retrieval work: a blank query or an unknown
// QueryType or Mode returns an error wrapping ErrInvalidArgument. Past that point
// Retrieve never fails. A missing provider, provider errors, timeouts, storage
// errors and panics all yield "" with a nil error.
func (e *Engine) Retrieve(
	ctx context.Context, query string, queryType QueryType, failureContext string, mode Mode,
) (out string, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case out == "":
			status = "empty"
		}
		e.obs.observe("retrieve", start, status, err)
	}()

	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: query is required", domain.ErrInvalidArgument)
	}
	qt, err := domain.ParseQueryType(string(queryType))
	if err != nil {
		return "", err
	}
	m, err := domain.ParseMode(string(mode))
	if err != nil {
		return "", err
	}

	return e.retrieval.Retrieve(ctx, domain.RetrievalRequest{
		Query:          query,
		Type:           qt,
		FailureContext: failureContext,
		Mode:           m,
	}), nil
}

// Health checks the store, the cache and every provider.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	report := e.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// Reload re-reads the snapshot and invalidates cached query embeddings.
// On failure the current corpus stays in place.
func (e *Engine) Reload(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.obs.observe("reload", start, status, err)
	}()

	if err = e.store.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	e.gen.Bump()
	return nil
}

// Close stops the watcher and releases all resources.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.stopWatch != nil {
			e.stopWatch()
		}
		e.wg.Wait()
		closeCache(e.cache)
		if e.store != nil {
			err = e.store.Close()
		}
	})
	return err
}

func closeCache(c db.Store) {
	if c != nil {
		c.Close()
	}
}
