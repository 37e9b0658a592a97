package routes

import (
	"net/http"

	"github.com/dukerupert/atelier/internal/middleware"
	"github.com/dukerupert/atelier/internal/router"
)

// RegisterCheckoutRoutes registers the checkout JSON API.
// Request bodies are capped; order placement may block while the shopper
// completes the gateway sheet, so no per-route timeout is applied here.
func RegisterCheckoutRoutes(r *router.Router, deps CheckoutDeps) {
	h := deps.CheckoutHandler
	limited := r.Group(middleware.MaxBodySize(middleware.CheckoutMaxBodySize))

	limited.Post("/api/checkout/quote", h.Quote)
	limited.Post("/api/checkout/sessions", h.CreateSession)
	r.Post("/api/checkout/sessions/{id}/cancel", h.CancelSession)
	limited.Post("/api/checkout/orders", h.PlaceOrder)

	r.Get("/api/orders/{id}", h.GetOrder)
}

// RegisterOpsRoutes registers health and metrics endpoints.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Get("/healthz", deps.HealthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
}
