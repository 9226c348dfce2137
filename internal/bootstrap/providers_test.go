package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/config"
	"github.com/kailas-cloud/failrag/internal/db"
	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/repository/embcache"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func openAIServer(t *testing.T, dim int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		vec := make([]float32, dim)
		vec[0] = 1
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
			"model":  "text-embedding-3-small",
			"usage":  map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildProvider_OpenAIWithCache(t *testing.T) {
	var hits atomic.Int32
	srv := openAIServer(t, 4, &hits)

	kv := &memKV{}
	p, err := BuildProvider(ProviderSettings{
		ID: domain.ProviderOpenAI, APIKey: "sk", BaseURL: srv.URL, Dimensions: 4,
	}, PurposeQuery, &Cache{Store: kv, Generation: &embcache.Generation{}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if p.ID() != domain.ProviderOpenAI || p.Dimension() != 4 {
		t.Fatalf("unexpected provider %s/%d", p.ID(), p.Dimension())
	}

	for range 2 {
		res, err := p.GenerateEmbedding(context.Background(), "disk full")
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Embedding) != 4 {
			t.Fatalf("len = %d", len(res.Embedding))
		}
	}
	if hits.Load() != 1 {
		t.Errorf("second query must be served from cache, upstream hits = %d", hits.Load())
	}
}

func TestBuildProvider_DocumentPurposeSkipsCache(t *testing.T) {
	var hits atomic.Int32
	srv := openAIServer(t, 4, &hits)

	p, err := BuildProvider(ProviderSettings{
		ID: domain.ProviderOpenAI, APIKey: "sk", BaseURL: srv.URL, Dimensions: 4,
	}, PurposeDocument, &Cache{Store: &memKV{}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := p.GenerateEmbedding(context.Background(), "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if hits.Load() != 2 {
		t.Errorf("document embeddings must not be cached, upstream hits = %d", hits.Load())
	}
}

func TestBuildProvider_GeminiTaskType(t *testing.T) {
	tests := []struct {
		purpose Purpose
		want    string
	}{
		{PurposeQuery, "RETRIEVAL_QUERY"},
		{PurposeDocument, "RETRIEVAL_DOCUMENT"},
	}
	for _, tt := range tests {
		var gotTask atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Requests []struct {
					TaskType string `json:"taskType"`
				} `json:"requests"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body.Requests) == 1 {
				gotTask.Store(body.Requests[0].TaskType)
			}
			_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5,0.5,0.5]}]}`))
		}))

		p, err := BuildProvider(ProviderSettings{
			ID: domain.ProviderGemini, APIKey: "g", BaseURL: srv.URL, Dimensions: 3,
		}, tt.purpose, nil, zap.NewNop())
		if err != nil {
			srv.Close()
			t.Fatal(err)
		}
		if _, err := p.GenerateEmbedding(context.Background(), "text"); err != nil {
			srv.Close()
			t.Fatal(err)
		}
		srv.Close()

		if got, _ := gotTask.Load().(string); got != tt.want {
			t.Errorf("purpose %d: taskType = %q, want %q", tt.purpose, got, tt.want)
		}
	}
}

func TestBuildProvider_Unknown(t *testing.T) {
	_, err := BuildProvider(ProviderSettings{ID: "cohere", Dimensions: 8}, PurposeQuery, nil, zap.NewNop())
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestBuildProvider_DefaultDimension(t *testing.T) {
	p, err := BuildProvider(ProviderSettings{ID: domain.ProviderGemini, APIKey: "g"}, PurposeQuery, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if p.Dimension() != 3072 {
		t.Errorf("dimension = %d, want 3072", p.Dimension())
	}
}

func TestProvidersFromConfig(t *testing.T) {
	cfg := config.Config{
		HTTP: config.HTTPConfig{Port: 8080},
		Providers: map[string]config.ProviderConfig{
			"gemini": {APIKey: "g", Model: "gemini-embedding-001"},
			"openai": {},
		},
	}
	cfg.ApplyDefaults()

	got := ProvidersFromConfig(&cfg)
	if len(got) != 1 || got[0].ID != domain.ProviderGemini {
		t.Fatalf("expected only gemini, got %+v", got)
	}
	s := got[0]
	if s.Dimensions != 3072 || s.Timeout != 30*time.Second {
		t.Errorf("unexpected settings: %+v", s)
	}
	if s.Retry.MaxAttempts != 3 || s.Retry.BaseDelay != time.Second || s.Retry.MaxDelay != 10*time.Second {
		t.Errorf("unexpected retry: %+v", s.Retry)
	}
}

func TestSpecs(t *testing.T) {
	specs := Specs([]ProviderSettings{{ID: domain.ProviderOpenAI}, {ID: domain.ProviderGemini, Dimensions: 768}})
	if len(specs) != 2 || specs[0].Dimension != 1536 || specs[1].Dimension != 768 {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}
