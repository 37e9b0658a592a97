package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReusesUpstream(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "lb-7f3a")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "lb-7f3a", seen)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, strings.Repeat("x", 500), seen)
}

func TestWithRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	h := RequestID(WithRequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		GetLogger(r.Context()).Info("placing order")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/orders", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	req.Header.Set(IdempotencyKeyHeader, "chk_42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "idempotency_key=chk_42")
	assert.Contains(t, out, "path=/api/checkout/orders")
}

func TestGetLogger_Fallback(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Same(t, fallback, GetLogger(req.Context(), fallback))
	assert.NotNil(t, GetLogger(req.Context()))
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var maxErr *http.MaxBytesError
		if _, err := io.ReadAll(r.Body); errors.As(err, &maxErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout/quote", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	chunked := httptest.NewRequest(http.MethodPost, "/api/checkout/quote", strings.NewReader("0123456789"))
	chunked.ContentLength = -1
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, chunked)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout/quote", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, reg, "test")

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/6a1f0b52-93c4-4e07-b8d2-5c0e7f3a9d11", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/another", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/api/orders/:id", "404")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_total")
}

func TestMetrics_UsesMatchedPattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, reg, "test")

	mux := http.NewServeMux()
	mux.Handle("POST /api/checkout/sessions/{id}/cancel", m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout/sessions/pi_3Nabc/cancel", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/api/checkout/sessions/:id/cancel", "204")))
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/orders/abc":                   "/api/orders/:id",
		"/api/checkout/sessions/pi_1/cancel": "/api/checkout/sessions/:id/cancel",
		"/api/checkout/quote":               "/api/checkout/quote",
		"/healthz":                          "/healthz",
		"/wp-login.php":                     "/other",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}
