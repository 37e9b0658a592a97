package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Enabled     bool
	Environment string
	Release     string

	// SampleRate is the share of errors sent (0.0 to 1.0). Zero means 1.0.
	SampleRate float64

	// TracesSampleRate is the share of transactions traced. Zero disables
	// tracing of gateway calls.
	TracesSampleRate float64

	Debug bool
}

var sentryEnabled atomic.Bool

// InitSentry initializes the Sentry client and returns a flush function for
// shutdown. A disabled or DSN-less config leaves every helper here a no-op.
func InitSentry(cfg SentryConfig, logger *slog.Logger) (func(), error) {
	sentryEnabled.Store(false)
	noop := func() {}

	if !cfg.Enabled {
		logger.Info("Sentry disabled")
		return noop, nil
	}
	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured, disabling error tracking")
		return noop, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		EnableTracing:    cfg.TracesSampleRate > 0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	sentryEnabled.Store(true)

	logger.Info("Sentry initialized",
		"environment", cfg.Environment,
		"release", cfg.Release,
		"sample_rate", sampleRate,
		"traces_sample_rate", cfg.TracesSampleRate,
	)

	return func() { sentry.Flush(flushTimeout) }, nil
}

// IsEnabled reports whether events are being sent.
func IsEnabled() bool {
	return sentryEnabled.Load()
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureErrorFromContext reports err on the request's hub. Checkout errors
// are tagged with their code, reason and operation so incidents such as a
// failed compensation can be filtered by reason.
func CaptureErrorFromContext(ctx context.Context, err error, extras map[string]interface{}) {
	if !IsEnabled() || err == nil {
		return
	}

	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error.code", domain.ErrorCode(err))
		if reason := domain.ErrorReason(err); reason != "" {
			scope.SetTag("checkout.reason", reason)
		}
		if op := domain.ErrorOp(err); op != "" {
			scope.SetTag("op", op)
		}
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		hub.CaptureException(err)
	})
}

// Breadcrumb records a checkout step on the request's hub so a later error
// event shows how far the shopper got.
func Breadcrumb(ctx context.Context, category, message string, data map[string]interface{}) {
	if !IsEnabled() {
		return
	}
	hubFrom(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Data:      data,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}

// StartSpan starts a span under the transaction in ctx.
func StartSpan(ctx context.Context, operation, description string) (context.Context, func()) {
	if !IsEnabled() {
		return ctx, func() {}
	}

	span := sentry.StartSpan(ctx, operation)
	span.Description = description
	return span.Context(), span.Finish
}

// SentryMiddleware gives each request its own hub and a transaction named
// after the route. Panics are left to router.Recovery, which reports them.
func SentryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			hub := sentry.GetHubFromContext(r.Context())
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
			}
			hub.Scope().SetRequest(r)
			ctx := sentry.SetHubOnContext(r.Context(), hub)

			tx := sentry.StartTransaction(ctx, r.Method+" "+r.URL.Path,
				sentry.WithOpName("http.server"),
				sentry.ContinueFromRequest(r),
			)
			defer tx.Finish()

			next.ServeHTTP(w, r.WithContext(tx.Context()))
		})
	}
}

// HTTPTransport wraps an http.RoundTripper with a client span per request.
// The payment gateway's HTTP client is built on it.
type HTTPTransport struct {
	Transport http.RoundTripper
}

func (t *HTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if !IsEnabled() {
		return base.RoundTrip(req)
	}

	span := sentry.StartSpan(req.Context(), "http.client")
	span.Description = fmt.Sprintf("%s %s%s", req.Method, req.URL.Host, req.URL.Path)
	defer span.Finish()

	resp, err := base.RoundTrip(req)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.HTTPtoSpanStatus(resp.StatusCode)
		span.SetData("http.status_code", resp.StatusCode)
	}

	return resp, err
}
