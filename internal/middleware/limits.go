package middleware

import "net/http"

// Common size limits
const (
	KB = 1024
	MB = 1024 * KB

	// CheckoutMaxBodySize bounds checkout payloads. A cart is a few dozen lines.
	CheckoutMaxBodySize = 256 * KB
)

// MaxBodySize caps request bodies at maxBytes through http.MaxBytesReader.
// Reads past the cap fail with *http.MaxBytesError whether or not the length
// was declared; handlers render that as a 413.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
