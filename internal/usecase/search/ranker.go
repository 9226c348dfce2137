package search

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// CosineSimilarity returns dot(a,b) / (|a|*|b|), or 0 when either norm is zero.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector lengths differ (%d vs %d)", domain.ErrInvalidArgument, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// RankAndFilter scores every candidate against query, keeps scores >= threshold,
// and returns at most maxResults hits ordered by score descending, then id ascending.
func RankAndFilter(
	query []float32, candidates []domain.Candidate, threshold float64, maxResults int,
) ([]domain.SearchHit, error) {
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be within [-1, 1], got %v", domain.ErrInvalidArgument, threshold)
	}
	if maxResults < 1 {
		return nil, fmt.Errorf("%w: maxResults must be positive, got %d", domain.ErrInvalidArgument, maxResults)
	}

	hits := make([]domain.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		score, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("score document %d: %w", c.Document.ID, err)
		}
		if score >= threshold {
			hits = append(hits, domain.NewSearchHit(c.Document, score))
		}
	}

	slices.SortStableFunc(hits, func(x, y domain.SearchHit) int {
		if c := cmp.Compare(y.Score(), x.Score()); c != 0 {
			return c
		}
		return cmp.Compare(x.Document().ID, y.Document().ID)
	})

	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}
