package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitSentry_Disabled(t *testing.T) {
	flush, err := InitSentry(SentryConfig{Enabled: false}, discard())
	require.NoError(t, err)
	defer flush()

	assert.False(t, IsEnabled())

	// Helpers are no-ops while disabled.
	CaptureErrorFromContext(context.Background(), errors.New("boom"), nil)
	Breadcrumb(context.Background(), "checkout", "session created", nil)
	ctx, finish := StartSpan(context.Background(), "gateway.checkout", "pi_1")
	finish()
	assert.Equal(t, context.Background(), ctx)
}

func TestInitSentry_EnabledWithoutDSN(t *testing.T) {
	flush, err := InitSentry(SentryConfig{Enabled: true}, discard())
	require.NoError(t, err)
	defer flush()

	assert.False(t, IsEnabled())
}

func TestInitSentry_InvalidDSN(t *testing.T) {
	_, err := InitSentry(SentryConfig{Enabled: true, DSN: "not a dsn"}, discard())
	require.Error(t, err)
	assert.False(t, IsEnabled())
}

func TestHTTPTransport_PassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &HTTPTransport{}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestSentryMiddleware_Disabled(t *testing.T) {
	_, err := InitSentry(SentryConfig{}, discard())
	require.NoError(t, err)

	called := false
	h := SentryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, called)
}
