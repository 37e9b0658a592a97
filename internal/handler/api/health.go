package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/atelier/internal/handler"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness with a database check.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler. db may be nil.
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{db: db, logger: logger}
}

// Health handles GET /healthz
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			handler.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
			return
		}
	}
	handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
