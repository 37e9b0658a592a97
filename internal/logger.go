package internal

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// redactedKeys are attribute keys whose values never reach the logs. Gateway
// sessions carry a client secret that lets anyone confirm the payment.
var redactedKeys = map[string]bool{
	"client_secret": true,
	"secret_key":    true,
	"authorization": true,
	"card_number":   true,
}

// NewLogger builds the service logger: JSON with RFC3339Nano timestamps in
// prod, text otherwise. Secrets are replaced with "[REDACTED]".
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	var l = new(slog.LevelVar) // Info by default
	switch level {
	case "debug":
		l.Set(slog.LevelDebug)
	case "warn":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	case "info", "":
	default:
		slog.Default().Warn("Invalid log level. Using default level: info", slog.String("value", level))
	}

	opts := &slog.HandlerOptions{
		Level:       l,
		ReplaceAttr: redact,
	}

	var h slog.Handler
	switch env {
	case "prod":
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String("time", a.Value.Time().Format(time.RFC3339Nano))
			}
			return redact(groups, a)
		}
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h).With(slog.String("service", "atelier"))
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
