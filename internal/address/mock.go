package address

import (
	"context"

	"github.com/dukerupert/atelier/internal/domain"
)

// MockValidator is a test implementation of Validator.
type MockValidator struct {
	ValidateFunc func(ctx context.Context, addr domain.Address) (*ValidationResult, error)

	// Calls records every address passed to Validate.
	Calls []domain.Address
}

// NewMockValidator creates a mock validator that accepts every address.
func NewMockValidator() *MockValidator {
	return &MockValidator{}
}

// Validate delegates to ValidateFunc, or accepts addr unchanged.
func (m *MockValidator) Validate(ctx context.Context, addr domain.Address) (*ValidationResult, error) {
	m.Calls = append(m.Calls, addr)
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, addr)
	}
	return &ValidationResult{IsValid: true, NormalizedAddress: addr}, nil
}
