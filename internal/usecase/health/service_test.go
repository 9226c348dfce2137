package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockValidator struct {
	id    domain.ProviderID
	ok    bool
	block bool
}

func (m *mockValidator) ID() domain.ProviderID { return m.id }

func (m *mockValidator) ValidateConnection(ctx context.Context) bool {
	if m.block {
		<-ctx.Done()
		return false
	}
	return m.ok
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, nil,
		&mockValidator{id: "openai", ok: true},
		&mockValidator{id: "gemini", ok: true},
	)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"store", "embedding:openai", "embedding:gemini"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
	if _, ok := r.Checks["cache"]; ok {
		t.Error("cache check must be absent when no cache is configured")
	}
}

func TestCheck_StoreError(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("store is not open")}, nil, &mockValidator{id: "openai", ok: true})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["store"] != CheckError {
		t.Errorf("expected store %q, got %q", CheckError, r.Checks["store"])
	}
	if r.Checks["embedding:openai"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding:openai"])
	}
}

func TestCheck_ProviderError(t *testing.T) {
	svc := New(&mockPinger{}, nil,
		&mockValidator{id: "openai", ok: true},
		&mockValidator{id: "gemini", ok: false},
	)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["embedding:gemini"] != CheckError {
		t.Errorf("expected gemini %q, got %q", CheckError, r.Checks["embedding:gemini"])
	}
}

func TestCheck_CacheError(t *testing.T) {
	svc := New(&mockPinger{}, &mockPinger{err: errors.New("connection refused")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["cache"] != CheckError {
		t.Errorf("expected cache %q, got %q", CheckError, r.Checks["cache"])
	}
}

func TestCheck_Timeout(t *testing.T) {
	svc := New(&mockPinger{}, nil, &mockValidator{id: "openai", block: true}).
		WithTimeout(20 * time.Millisecond)

	start := time.Now()
	r := svc.Check(context.Background())
	if time.Since(start) > 5*time.Second {
		t.Fatal("check did not honor its timeout")
	}
	if r.Status != Degraded || r.Checks["embedding:openai"] != CheckError {
		t.Errorf("unexpected report: %+v", r)
	}
}
