package retrieval

import (
	"context"
	"errors"
	"sync"

	"github.com/kailas-cloud/failrag/internal/domain"
)

type fakeProvider struct {
	id    domain.ProviderID
	dim   int
	vec   []float32
	err   error
	panic bool
	block bool

	mu    sync.Mutex
	texts []string
}

func (p *fakeProvider) ID() domain.ProviderID { return p.id }
func (p *fakeProvider) Dimension() int        { return p.dim }

func (p *fakeProvider) GenerateEmbedding(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()

	if p.panic {
		panic("provider exploded")
	}
	if p.block {
		<-ctx.Done()
		return domain.EmbeddingResult{}, ctx.Err()
	}
	if p.err != nil {
		return domain.EmbeddingResult{}, p.err
	}
	return domain.EmbeddingResult{Embedding: p.vec}, nil
}

func (p *fakeProvider) ValidateConnection(ctx context.Context) bool {
	_, err := p.GenerateEmbedding(ctx, "connection test")
	return err == nil
}

func (p *fakeProvider) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

type fakeScanner struct {
	candidates map[domain.ProviderID][]domain.Candidate
	err        error
	scans      int
}

func (s *fakeScanner) ScanCandidates(_ context.Context, id domain.ProviderID) ([]domain.Candidate, error) {
	s.scans++
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates[id], nil
}

var errStore = errors.New("disk I/O error")

func candidate(id int64, title string, vec ...float32) domain.Candidate {
	return domain.Candidate{
		Document: domain.DocumentEntry{
			ID:              id,
			Category:        "ci",
			Title:           title,
			Content:         "content " + title,
			Summary:         "summary " + title,
			RootCauses:      "causes " + title,
			ResolutionSteps: "steps " + title,
			Tags:            "flaky, network",
		},
		Embedding: vec,
	}
}
