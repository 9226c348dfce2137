package corpus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// DefaultConcurrency bounds in-flight embedding requests during indexing.
const DefaultConcurrency = 4

// Store is the write side of the document store used by the indexer.
type Store interface {
	ClearAll(ctx context.Context) error
	Insert(ctx context.Context, entry domain.DocumentEntry, embeddings map[domain.ProviderID][]float32) (int64, error)
	UpdateEmbedding(ctx context.Context, id int64, provider domain.ProviderID, vec []float32) error
	MissingEmbeddings(ctx context.Context, provider domain.ProviderID) ([]domain.DocumentEntry, error)
}

// Report summarizes an indexing run.
type Report struct {
	Inserted int
	Embedded map[domain.ProviderID]int
	Failed   map[domain.ProviderID]int
}

func newReport() Report {
	return Report{
		Embedded: make(map[domain.ProviderID]int),
		Failed:   make(map[domain.ProviderID]int),
	}
}

// Indexer fills a writable store with documents and their embeddings.
type Indexer struct {
	store       Store
	providers   []domain.EmbeddingProvider
	concurrency int
	logger      *zap.Logger
}

// NewIndexer creates an indexer that embeds with every given provider.
func NewIndexer(store Store, providers []domain.EmbeddingProvider, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: store, providers: providers, concurrency: DefaultConcurrency, logger: logger}
}

// WithConcurrency sets the number of parallel embedding requests.
func (ix *Indexer) WithConcurrency(n int) *Indexer {
	if n > 0 {
		ix.concurrency = n
	}
	return ix
}

// Build replaces the store contents with entries and embeds them.
// Embedding failures are counted per provider; only store errors abort the run.
func (ix *Indexer) Build(ctx context.Context, entries []domain.DocumentEntry) (Report, error) {
	report := newReport()

	if err := ix.store.ClearAll(ctx); err != nil {
		return report, fmt.Errorf("clear store: %w", err)
	}

	inserted := make([]domain.DocumentEntry, 0, len(entries))
	for _, e := range entries {
		id, err := ix.store.Insert(ctx, e, nil)
		if err != nil {
			return report, fmt.Errorf("insert %q: %w", e.Title, err)
		}
		e.ID = id
		inserted = append(inserted, e)
	}
	report.Inserted = len(inserted)
	ix.logger.Info("Inserted corpus documents", zap.Int("documents", report.Inserted))

	for _, p := range ix.providers {
		if err := ix.embedAll(ctx, p, inserted, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Backfill embeds only the documents missing an embedding for each provider.
func (ix *Indexer) Backfill(ctx context.Context) (Report, error) {
	report := newReport()
	for _, p := range ix.providers {
		docs, err := ix.store.MissingEmbeddings(ctx, p.ID())
		if err != nil {
			return report, fmt.Errorf("list documents missing %s: %w", p.ID(), err)
		}
		ix.logger.Info("Backfilling embeddings",
			zap.String("provider", string(p.ID())), zap.Int("documents", len(docs)))
		if err := ix.embedAll(ctx, p, docs, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (ix *Indexer) embedAll(
	ctx context.Context, p domain.EmbeddingProvider, docs []domain.DocumentEntry, report *Report,
) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			err := ix.embedOne(gctx, p, doc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[p.ID()]++
				ix.logger.Warn("Failed to embed document",
					zap.String("provider", string(p.ID())),
					zap.Int64("id", doc.ID),
					zap.String("title", doc.Title),
					zap.Error(err),
				)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			report.Embedded[p.ID()]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("embed with %s: %w", p.ID(), err)
	}
	return nil
}

func (ix *Indexer) embedOne(ctx context.Context, p domain.EmbeddingProvider, doc domain.DocumentEntry) error {
	res, err := p.GenerateEmbedding(ctx, doc.Content)
	if err != nil {
		return err
	}
	if err := ix.store.UpdateEmbedding(ctx, doc.ID, p.ID(), res.Embedding); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}
