package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/metrics"
	healthuc "github.com/kailas-cloud/failrag/internal/usecase/health"
)

// maxRequestBody bounds the retrieve payload.
const maxRequestBody = 1 << 20

// ErrorCode is a machine-readable error kind returned to clients.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest    ErrorCode = "bad_request"
	ErrorCodeUnauthorized  ErrorCode = "unauthorized"
	ErrorCodeInternalError ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// RetrieveRequest is the body of POST /v1/retrieve.
type RetrieveRequest struct {
	Query          string `json:"query"`
	QueryType      string `json:"query_type,omitempty"`
	FailureContext string `json:"failure_context,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

// RetrieveResponse carries the rendered documentation context. Empty when nothing relevant was found.
type RetrieveResponse struct {
	Context string `json:"context"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Retriever renders documentation context for a request.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest) string
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the retrieval HTTP API.
type Server struct {
	retriever Retriever
	health    HealthChecker
	apiKeys   []string
	logger    *zap.Logger
}

// NewServer creates an HTTP API server. Empty apiKeys disables authentication.
func NewServer(retriever Retriever, health HealthChecker, apiKeys []string, logger *zap.Logger) *Server {
	return &Server{retriever: retriever, health: health, apiKeys: apiKeys, logger: logger}
}

// Router builds the chi router with the full middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.apiKeys))
	r.Use(metrics.Middleware())

	r.Post("/v1/retrieve", s.Retrieve)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	return r
}

// Retrieve handles POST /v1/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var body RetrieveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid request body")
		return
	}

	req, err := retrievalRequestFromBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, safeDomainMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, RetrieveResponse{Context: s.retriever.Retrieve(r.Context(), req)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func retrievalRequestFromBody(body RetrieveRequest) (domain.RetrievalRequest, error) {
	if strings.TrimSpace(body.Query) == "" {
		return domain.RetrievalRequest{}, errors.New("query is required")
	}
	qt, err := domain.ParseQueryType(body.QueryType)
	if err != nil {
		return domain.RetrievalRequest{}, err
	}
	mode, err := domain.ParseMode(body.Mode)
	if err != nil {
		return domain.RetrievalRequest{}, err
	}
	return domain.RetrievalRequest{
		Query:          body.Query,
		Type:           qt,
		FailureContext: body.FailureContext,
		Mode:           mode,
	}, nil
}

// safeDomainMessage returns a client-facing message for validation errors without exposing internals.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidArgument) {
		return strings.TrimPrefix(err.Error(), domain.ErrInvalidArgument.Error()+": ")
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
