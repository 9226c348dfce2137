package document

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
)

const (
	provA domain.ProviderID = "prova"
	provB domain.ProviderID = "provb"
)

var testSpecs = []domain.ProviderSpec{
	{ID: provA, Dimension: 4},
	{ID: provB, Dimension: 8},
}

func newWritableStore(t *testing.T, specs []domain.ProviderSpec) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.db")
	s, err := New(specs, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.InitializeWritable(context.Background(), path); err != nil {
		t.Fatalf("initialize writable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sampleEntry(title string) domain.DocumentEntry {
	return domain.DocumentEntry{
		Category:        "flaky",
		Title:           title,
		Content:         "content of " + title,
		Summary:         "summary of " + title,
		RootCauses:      "race",
		ResolutionSteps: "retry",
		Tags:            "ci, timeout",
	}
}

func mustInsert(
	t *testing.T, s *Store, title string, embeddings map[domain.ProviderID][]float32,
) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), sampleEntry(title), embeddings)
	if err != nil {
		t.Fatalf("insert %q: %v", title, err)
	}
	return id
}

// buildSnapshot writes a closed snapshot file containing n documents with provA embeddings.
func buildSnapshot(t *testing.T, specs []domain.ProviderSpec, n int) string {
	t.Helper()
	s, path := newWritableStore(t, specs)
	for i := 0; i < n; i++ {
		mustInsert(t, s, "doc", map[domain.ProviderID][]float32{provA: {float32(i + 1), 0, 0, 0}})
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close snapshot store: %v", err)
	}
	return path
}
