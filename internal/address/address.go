// Package address checks delivery addresses before an order is paid for.
package address

import (
	"context"

	"github.com/dukerupert/atelier/internal/domain"
)

// Validator defines the interface for address validation.
// Implementations may call an external verification API; BasicValidator only
// checks field presence and format.
type Validator interface {
	// Validate checks that addr is deliverable. NormalizedAddress is set
	// even when IsValid is false.
	Validate(ctx context.Context, addr domain.Address) (*ValidationResult, error)
}

// ValidationResult contains the outcome of address validation.
type ValidationResult struct {
	IsValid           bool
	NormalizedAddress domain.Address
	Errors            []ValidationError
}

// ValidationError represents a specific validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Fields returns the errors keyed by field name.
func (r *ValidationResult) Fields() map[string]string {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		out[e.Field] = e.Message
	}
	return out
}
