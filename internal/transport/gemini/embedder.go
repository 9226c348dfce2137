package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/metrics"
)

// Defaults applied by NewEmbedder.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-embedding-001"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// TaskType tells the service how the embedding will be used.
type TaskType string

// Task types.
const (
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
)

// Envelope paths tried in order when extracting the vector.
var vectorPaths = []string{
	"embeddings.0.values",
	"embedding.values",
	"data.0.embedding",
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	TaskType   TaskType
	Provider   string
	Logger     *zap.Logger
}

// Embedder calls the Gemini batchEmbedContents endpoint.
type Embedder struct {
	http       *http.Client
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	taskType   TaskType
	provider   string
	logger     *zap.Logger
}

// NewEmbedder creates a Gemini embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	task := cfg.TaskType
	if task == "" {
		task = TaskRetrievalQuery
	}
	provider := cfg.Provider
	if provider == "" {
		provider = string(domain.ProviderGemini)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		http:       &http.Client{Timeout: timeout},
		endpoint:   base + "/models/" + model + ":batchEmbedContents",
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: cfg.Dimensions,
		taskType:   task,
		provider:   provider,
		logger:     logger,
	}
}

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type embedRequest struct {
	Model                string   `json:"model"`
	Content              content  `json:"content"`
	TaskType             TaskType `json:"taskType,omitempty"`
	OutputDimensionality int      `json:"outputDimensionality,omitempty"`
}

type batchRequest struct {
	Requests []embedRequest `json:"requests"`
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	body, err := json.Marshal(batchRequest{Requests: []embedRequest{{
		Model:                "models/" + e.model,
		Content:              content{Parts: []part{{Text: text}}},
		TaskType:             e.taskType,
		OutputDimensionality: e.dimensions,
	}}})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	data, err := e.post(ctx, body)
	duration := time.Since(start)
	if err != nil {
		e.fail("api_error")
		e.logger.Debug("Embedding request failed",
			zap.String("provider", e.provider), zap.Duration("duration", duration), zap.Error(err))
		return domain.EmbeddingResult{}, err
	}

	vec, err := extractVector(data)
	if err != nil {
		e.fail("empty_response")
		return domain.EmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(duration.Seconds())

	// Gemini reports no token usage for embeddings.
	return domain.EmbeddingResult{Embedding: vec}, nil
}

func (e *Embedder) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, msg)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return data, nil
}

func (e *Embedder) fail(errorType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, errorType).Inc()
}

// extractVector reads the first embedding from any supported response envelope.
func extractVector(data []byte) ([]float32, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid embedding response: %w", domain.ErrEmbeddingProviderError)
	}
	for _, path := range vectorPaths {
		res := gjson.GetBytes(data, path)
		if !res.IsArray() {
			continue
		}
		values := res.Array()
		if len(values) == 0 {
			continue
		}
		vec := make([]float32, len(values))
		for i, v := range values {
			if v.Type != gjson.Number {
				return nil, fmt.Errorf("non-numeric value at %s[%d]: %w", path, i, domain.ErrEmbeddingProviderError)
			}
			vec[i] = float32(v.Float())
		}
		return vec, nil
	}
	return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
}

func statusError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if domain.RejectedStatus(status) {
		return fmt.Errorf("embedding API error %d: %s: %w: %w",
			status, msg, domain.ErrEmbeddingProviderError, domain.ErrProviderRejected)
	}
	return fmt.Errorf("embedding API error %d: %s: %w", status, msg, domain.ErrEmbeddingProviderError)
}
