package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/v1/retrieve", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"context":""}`))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.Get("/v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func serve(r http.Handler, method, path string) int {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, http.NoBody))
	return rr.Code
}

func TestMiddleware_RecordsRouteAndStatus(t *testing.T) {
	r := newRouter()

	tests := []struct {
		method string
		path   string
		route  string
		status string
	}{
		{"POST", "/v1/retrieve", "/v1/retrieve", "200"},
		{"GET", "/health", "/health", "503"},
		{"GET", "/v1/documents/42", "/v1/documents/{id}", "204"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			serve(r, tc.method, tc.path)
			after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			if after-before != 1 {
				t.Errorf("requests_total{%s,%s,%s} grew by %v, want 1", tc.method, tc.route, tc.status, after-before)
			}
		})
	}

	if testutil.CollectAndCount(HTTPRequestDuration) == 0 {
		t.Error("expected http_request_duration_seconds observations")
	}
}

func TestMiddleware_UnmatchedRoutesShareOneLabel(t *testing.T) {
	r := newRouter()

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))
	serve(r, "GET", "/no/such/path")
	serve(r, "GET", "/another/missing")
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))

	if after-before != 2 {
		t.Errorf("unmatched 404s grew by %v, want 2", after-before)
	}
}

func TestMiddleware_InFlightReturnsToZero(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())

	var during float64
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(HTTPRequestsInFlight)
	})

	base := testutil.ToFloat64(HTTPRequestsInFlight)
	serve(r, "GET", "/slow")

	if during != base+1 {
		t.Errorf("in-flight during request = %v, want %v", during, base+1)
	}
	if got := testutil.ToFloat64(HTTPRequestsInFlight); got != base {
		t.Errorf("in-flight after request = %v, want %v", got, base)
	}
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	sw.WriteHeader(http.StatusBadRequest)
	sw.WriteHeader(http.StatusInternalServerError)

	if sw.status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", sw.status)
	}
	if sw.Unwrap() != rr {
		t.Error("Unwrap should return the underlying writer")
	}
}

func TestRegisterHTTPMetrics_Idempotent(t *testing.T) {
	RegisterHTTPMetrics()
	RegisterHTTPMetrics()
}
