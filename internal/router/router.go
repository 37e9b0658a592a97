package router

import (
	"net/http"
	"slices"
	"sync"
)

// Router wraps http.ServeMux with middleware chaining. Patterns use the
// Go 1.22 method and wildcard syntax, e.g. "GET /api/orders/{id}".
//
// Groups share the parent's mux and route table; only the middleware chain
// is copied.
type Router struct {
	mux    *http.ServeMux
	chain  []Middleware
	routes *routeTable
}

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

type routeTable struct {
	mu       sync.Mutex
	patterns []string
}

// New creates a new Router with optional global middleware
func New(middleware ...Middleware) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		chain:  middleware,
		routes: &routeTable{},
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodGet, pattern, handler, middleware...)
}

// Post registers a POST route
func (r *Router) Post(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodPost, pattern, handler, middleware...)
}

// Handle registers a route with explicit method. Registering the same
// method and pattern twice panics, as with http.ServeMux.
func (r *Router) Handle(method, pattern string, handler http.Handler, middleware ...Middleware) {
	full := method + " " + pattern
	r.mux.Handle(full, r.wrap(handler, middleware))

	r.routes.mu.Lock()
	r.routes.patterns = append(r.routes.patterns, full)
	r.routes.mu.Unlock()
}

// Routes returns the registered "METHOD /pattern" strings, sorted.
func (r *Router) Routes() []string {
	r.routes.mu.Lock()
	defer r.routes.mu.Unlock()

	out := slices.Clone(r.routes.patterns)
	slices.Sort(out)
	return out
}

// wrap applies global, group and route middleware so they run in the order
// they were declared.
func (r *Router) wrap(handler http.Handler, middleware []Middleware) http.Handler {
	combined := append(slices.Clone(r.chain), middleware...)
	slices.Reverse(combined)

	result := handler
	for _, m := range combined {
		result = m(result)
	}
	return result
}

// Group creates a sub-router with additional middleware
func (r *Router) Group(middleware ...Middleware) *Router {
	return &Router{
		mux:    r.mux,
		chain:  append(slices.Clone(r.chain), middleware...),
		routes: r.routes,
	}
}
