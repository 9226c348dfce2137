package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/bootstrap"
	"github.com/kailas-cloud/failrag/internal/config"
	"github.com/kailas-cloud/failrag/internal/db"
	dbRedis "github.com/kailas-cloud/failrag/internal/db/redis"
	"github.com/kailas-cloud/failrag/internal/domain"
	documentrepo "github.com/kailas-cloud/failrag/internal/repository/document"
	"github.com/kailas-cloud/failrag/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/failrag/internal/transport/chi"
	healthuc "github.com/kailas-cloud/failrag/internal/usecase/health"
	"github.com/kailas-cloud/failrag/internal/usecase/retrieval"
)

// components is the wired server graph.
type components struct {
	handler http.Handler
	store   *documentrepo.Store
	cache   db.Store
	gen     *embcache.Generation
}

// Close releases the store and the cache connection.
func (c *components) Close() {
	if c.store != nil {
		_ = c.store.Close()
	}
	if c.cache != nil {
		c.cache.Close()
	}
}

// wire builds the server graph from cfg. Providers without credentials are skipped;
// with none left, retrieval answers "" and the server still starts.
func wire(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{gen: &embcache.Generation{}}
	settings := bootstrap.ProvidersFromConfig(cfg)

	// Optional query embedding cache
	var cacheChain *bootstrap.Cache
	if len(cfg.Cache.Addrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Cache.Addrs, Password: cfg.Cache.Password})
		if err != nil {
			return nil, fmt.Errorf("create cache store: %w", err)
		}
		if err := s.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			s.Close()
			return nil, fmt.Errorf("cache not ready: %w", err)
		}
		c.cache = s
		cacheChain = &bootstrap.Cache{
			Store:      s,
			TTL:        time.Duration(cfg.Cache.TTLSec) * time.Second,
			Generation: c.gen,
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Provider chains: transport, then optional cache, then retry policy.
	providers, err := bootstrap.BuildProviders(settings, bootstrap.PurposeQuery, cacheChain, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("build embedding providers: %w", err)
	}
	byID := make(map[domain.ProviderID]domain.EmbeddingProvider, len(providers))
	validators := make([]healthuc.ConnectionValidator, 0, len(providers))
	bindings := make([]retrieval.ProviderBinding, 0, len(settings))
	for i, p := range providers {
		byID[p.ID()] = p
		validators = append(validators, p)
		bindings = append(bindings, retrieval.ProviderBinding{
			ID: p.ID(), ModelPrefixes: settings[i].ModelPrefixes, HasCredentials: true,
		})
	}
	if len(providers) == 0 {
		logger.Warn("No embedding provider has credentials, retrieval will return empty context")
	}

	// Document store loaded from the packaged snapshot
	store, err := documentrepo.New(bootstrap.Specs(settings), logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create document store: %w", err)
	}
	if err := store.InitializeReadOnly(ctx, cfg.Store.SnapshotPath); err != nil {
		c.Close()
		return nil, fmt.Errorf("load snapshot %s: %w", cfg.Store.SnapshotPath, err)
	}
	c.store = store

	defaultModel := cfg.Retrieval.DefaultModel
	resolver := retrieval.NewModelResolver(func() string { return defaultModel }, bindings)
	retrievalSvc := retrieval.New(byID, store, resolver, logger).
		WithThreshold(*cfg.Retrieval.Threshold).
		WithMaxResults(cfg.Retrieval.MaxResults).
		WithTimeout(time.Duration(cfg.Retrieval.TimeoutSec) * time.Second)

	// Pass nil interface (not typed nil pointer!) if the cache is not configured.
	var cachePinger healthuc.Pinger
	if c.cache != nil {
		cachePinger = c.cache
	}
	healthSvc := healthuc.New(store, cachePinger, validators...)

	c.handler = chiTransport.NewServer(retrievalSvc, healthSvc, cfg.Auth.APIKeys, logger).Router()
	return c, nil
}
