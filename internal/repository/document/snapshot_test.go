package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
)

func newReadOnlyStore(t *testing.T, specs []domain.ProviderSpec, path string) *Store {
	t.Helper()
	s, err := New(specs, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InitializeReadOnly(context.Background(), path); err != nil {
		t.Fatalf("initialize read-only: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInitializeReadOnly_LoadsSnapshot(t *testing.T) {
	path := buildSnapshot(t, testSpecs, 3)
	s := newReadOnlyStore(t, testSpecs, path)
	ctx := context.Background()

	got, err := s.ScanCandidates(ctx, provA)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[2].Embedding[0] != 3 {
		t.Errorf("unexpected vector: %v", got[2].Embedding)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestInitializeReadOnly_RejectsWrites(t *testing.T) {
	s := newReadOnlyStore(t, testSpecs, buildSnapshot(t, testSpecs, 1))
	ctx := context.Background()

	if _, err := s.Insert(ctx, sampleEntry("x"), nil); !errors.Is(err, domain.ErrReadOnlyStore) {
		t.Errorf("insert: expected ErrReadOnlyStore, got %v", err)
	}
	if err := s.UpdateEmbedding(ctx, 1, provA, []float32{1, 2, 3, 4}); !errors.Is(err, domain.ErrReadOnlyStore) {
		t.Errorf("update: expected ErrReadOnlyStore, got %v", err)
	}
	if err := s.ClearAll(ctx); !errors.Is(err, domain.ErrReadOnlyStore) {
		t.Errorf("clear: expected ErrReadOnlyStore, got %v", err)
	}
}

func TestInitializeReadOnly_DoesNotTouchSnapshotFile(t *testing.T) {
	path := buildSnapshot(t, testSpecs, 2)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	newReadOnlyStore(t, testSpecs, path)

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("loading a snapshot modified the file")
	}
}

func TestInitializeReadOnly_MissingFile(t *testing.T) {
	s, err := New(testSpecs, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	err = s.InitializeReadOnly(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	if !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestInitializeReadOnly_SnapshotWithoutProviderColumns(t *testing.T) {
	// Snapshot built before provB existed.
	path := buildSnapshot(t, []domain.ProviderSpec{{ID: provA, Dimension: 4}}, 2)
	s := newReadOnlyStore(t, testSpecs, path)
	ctx := context.Background()

	if n, _ := s.CountWithEmbeddings(ctx, provA); n != 2 {
		t.Errorf("provA count = %d, want 2", n)
	}
	if n, err := s.CountWithEmbeddings(ctx, provB); err != nil || n != 0 {
		t.Errorf("provB count = %d (%v), want 0", n, err)
	}
}

func TestInitializeReadOnly_DimensionMismatchIsIntegrityError(t *testing.T) {
	path := buildSnapshot(t, testSpecs, 1)

	s, err := New([]domain.ProviderSpec{{ID: provA, Dimension: 16}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	err = s.InitializeReadOnly(context.Background(), path)
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestInitializeReadOnly_NotASnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := New(testSpecs, zap.NewNop())
	if err := s.InitializeReadOnly(context.Background(), path); !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestInitializeReadOnly_NoProviders(t *testing.T) {
	s := newReadOnlyStore(t, nil, buildSnapshot(t, testSpecs, 2))
	ctx := context.Background()

	if n, err := s.Count(ctx); err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2 documents", n, err)
	}
	if _, err := s.ScanCandidates(ctx, provA); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider without provider columns, got %v", err)
	}
}

func TestInitializeReadOnly_MissingSnapshotWithoutProviders(t *testing.T) {
	s, err := New(nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = s.InitializeReadOnly(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	if !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestReload_StoreClosedDuringLoad(t *testing.T) {
	path := buildSnapshot(t, testSpecs, 1)
	s := newReadOnlyStore(t, testSpecs, path)
	ctx := context.Background()

	fresh, err := s.loadSnapshot(ctx, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := s.swap(fresh, path, true, true); !errors.Is(err, domain.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.Count(ctx); !errors.Is(err, domain.ErrStoreClosed) {
		t.Errorf("closed store must stay closed, count returned %v", err)
	}
	if err := fresh.PingContext(ctx); err == nil {
		t.Error("discarded snapshot connection should be closed")
	}
}

func TestReload_PicksUpReplacedSnapshot(t *testing.T) {
	path := buildSnapshot(t, testSpecs, 1)
	s := newReadOnlyStore(t, testSpecs, path)

	replacement := buildSnapshot(t, testSpecs, 4)
	if err := os.Rename(replacement, path); err != nil {
		t.Fatal(err)
	}

	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n, _ := s.Count(context.Background()); n != 4 {
		t.Errorf("count after reload = %d, want 4", n)
	}
}

func TestReload_FailureKeepsCorpus(t *testing.T) {
	path := buildSnapshot(t, testSpecs, 2)
	s := newReadOnlyStore(t, testSpecs, path)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(context.Background()); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
	if n, _ := s.Count(context.Background()); n != 2 {
		t.Errorf("corpus must survive a failed reload, got %d documents", n)
	}
}

func TestReload_WritableStore(t *testing.T) {
	s, _ := newWritableStore(t, testSpecs)
	if err := s.Reload(context.Background()); err == nil {
		t.Fatal("expected error reloading a writable store")
	}
}

type reloadCounter struct {
	inner Reloader
	done  chan struct{}
}

func (r *reloadCounter) Reload(ctx context.Context) error {
	err := r.inner.Reload(ctx)
	if err == nil {
		select {
		case r.done <- struct{}{}:
		default:
		}
	}
	return err
}

func TestWatcher_ReloadsOnReplace(t *testing.T) {
	path := buildSnapshot(t, testSpecs, 1)
	s := newReadOnlyStore(t, testSpecs, path)

	rc := &reloadCounter{inner: s, done: make(chan struct{}, 1)}
	hooked := make(chan struct{}, 1)
	w := NewWatcher(rc, path, func() {
		select {
		case hooked <- struct{}{}:
		default:
		}
	}, zap.NewNop()).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	// Give the watcher time to register before replacing the file.
	time.Sleep(100 * time.Millisecond)

	replacement := buildSnapshot(t, testSpecs, 3)
	if err := os.Rename(replacement, path); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rc.done:
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot was not reloaded")
	}
	select {
	case <-hooked:
	case <-time.After(time.Second):
		t.Fatal("onReload hook not called")
	}
	if n, _ := s.Count(context.Background()); n != 3 {
		t.Errorf("count after watched reload = %d, want 3", n)
	}

	cancel()
	if err := <-runErr; err != nil {
		t.Errorf("Run returned error: %v", err)
	}
}
