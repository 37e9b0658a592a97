package routes

import (
	"net/http"

	"github.com/dukerupert/atelier/internal/handler/api"
)

// CheckoutDeps contains dependencies for checkout API routes
type CheckoutDeps struct {
	// Quote, gateway sessions, order placement and order lookup
	CheckoutHandler *api.CheckoutHandler
}

// OpsDeps contains dependencies for operational endpoints
type OpsDeps struct {
	HealthHandler  *api.HealthHandler
	MetricsHandler http.Handler // nil disables /metrics
}
