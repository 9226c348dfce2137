package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
	healthuc "github.com/kailas-cloud/failrag/internal/usecase/health"
)

type fakeRetriever struct {
	out   string
	last  domain.RetrievalRequest
	calls int
	panic bool
}

func (f *fakeRetriever) Retrieve(_ context.Context, req domain.RetrievalRequest) string {
	if f.panic {
		panic("boom")
	}
	f.calls++
	f.last = req
	return f.out
}

type fakeHealth struct{ report healthuc.Report }

func (f *fakeHealth) Check(context.Context) healthuc.Report { return f.report }

func newTestServer(ret *fakeRetriever, h *fakeHealth, keys ...string) http.Handler {
	if h == nil {
		h = &fakeHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}}
	}
	return NewServer(ret, h, keys, zap.NewNop()).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRetrieve_OK(t *testing.T) {
	ret := &fakeRetriever{out: "## Relevant Documentation (for this failure)\n"}
	h := newTestServer(ret, nil)

	rr := do(t, h, "POST", "/v1/retrieve",
		`{"query":"job failed","query_type":"failure_analysis","failure_context":"exit 137","mode":"detailed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp RetrieveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Context != ret.out {
		t.Errorf("context = %q, want %q", resp.Context, ret.out)
	}
	want := domain.RetrievalRequest{
		Query: "job failed", Type: domain.QueryFailureAnalysis, FailureContext: "exit 137", Mode: domain.ModeDetailed,
	}
	if ret.last != want {
		t.Errorf("request = %+v, want %+v", ret.last, want)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRetrieve_Defaults(t *testing.T) {
	ret := &fakeRetriever{}
	h := newTestServer(ret, nil)

	rr := do(t, h, "POST", "/v1/retrieve", `{"query":"how do I restart"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}
	if ret.last.Type != domain.QueryUser || ret.last.Mode != domain.ModeOverview {
		t.Errorf("unexpected defaults: %+v", ret.last)
	}
	if !strings.Contains(rr.Body.String(), `"context":""`) {
		t.Errorf("empty result must still carry a context field: %s", rr.Body.String())
	}
}

func TestRetrieve_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"query":`},
		{"unknown field", `{"query":"q","limit":3}`},
		{"blank query", `{"query":"   "}`},
		{"bad query type", `{"query":"q","query_type":"chat"}`},
		{"bad mode", `{"query":"q","mode":"verbose"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret := &fakeRetriever{}
			rr := do(t, newTestServer(ret, nil), "POST", "/v1/retrieve", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want 400", rr.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != ErrorCodeBadRequest {
				t.Errorf("code = %s, want %s", resp.Code, ErrorCodeBadRequest)
			}
			if ret.calls != 0 {
				t.Error("retriever must not be called for invalid input")
			}
		})
	}
}

func TestRetrieve_EnumMessage(t *testing.T) {
	rr := do(t, newTestServer(&fakeRetriever{}, nil), "POST", "/v1/retrieve", `{"query":"q","mode":"verbose"}`)

	var resp ErrorResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Message != `unknown mode "verbose"` {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestRetrieve_PanicRecovered(t *testing.T) {
	rr := do(t, newTestServer(&fakeRetriever{panic: true}, nil), "POST", "/v1/retrieve", `{"query":"q"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), string(ErrorCodeInternalError)) {
		t.Errorf("expected JSON internal error, got %s", rr.Body.String())
	}
}

func TestRetrieve_RequiresAuth(t *testing.T) {
	h := newTestServer(&fakeRetriever{}, nil, "secret")

	if rr := do(t, h, "POST", "/v1/retrieve", `{"query":"q"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rr.Code)
	}
	if rr := do(t, h, "POST", "/v1/retrieve", `{"query":"q"}`, "Authorization", "Bearer secret"); rr.Code != http.StatusOK {
		t.Errorf("valid token: got %d, want 200", rr.Code)
	}
	if rr := do(t, h, "GET", "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health must be exempt: got %d", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		report     healthuc.Report
		wantStatus int
	}{
		{
			name: "healthy",
			report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{
				"store": healthuc.CheckOK, "embedding:openai": healthuc.CheckOK,
			}},
			wantStatus: http.StatusOK,
		},
		{
			name: "degraded",
			report: healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{
				"store": healthuc.CheckOK, "embedding:openai": healthuc.CheckError,
			}},
			wantStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, newTestServer(&fakeRetriever{}, &fakeHealth{report: tt.report}), "GET", "/health", "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("got %d, want %d", rr.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != string(tt.report.Status) {
				t.Errorf("status = %q, want %q", resp.Status, tt.report.Status)
			}
			if resp.Checks["embedding:openai"] != string(tt.report.Checks["embedding:openai"]) {
				t.Errorf("unexpected checks: %v", resp.Checks)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(&fakeRetriever{}, nil, "secret")
	_ = do(t, h, "POST", "/v1/retrieve", `{"query":"q"}`, "Authorization", "Bearer secret")

	rr := do(t, h, "GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "failrag_http_requests_total") {
		t.Error("expected failrag_http_requests_total in metrics output")
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestServer(&fakeRetriever{}, nil)
	if rr := do(t, h, "GET", "/v1/collections", ""); rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rr.Code)
	}
	if rr := do(t, h, "GET", "/v1/retrieve", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("got %d, want 405", rr.Code)
	}
}
