package shipping

import (
	"github.com/shopspring/decimal"
)

// Policy determines the delivery charge for a cart subtotal.
// The cart preview and checkout must use the same Policy so the shopper never
// sees two different totals for the same cart.
type Policy interface {
	Charge(subtotal decimal.Decimal) decimal.Decimal
}

// ThresholdPolicy charges FlatFee unless the subtotal is strictly above FreeAbove.
type ThresholdPolicy struct {
	FreeAbove decimal.Decimal
	FlatFee   decimal.Decimal
}

// NewThresholdPolicy creates a threshold policy. A negative fee is treated as zero.
func NewThresholdPolicy(freeAbove, flatFee decimal.Decimal) *ThresholdPolicy {
	if flatFee.IsNegative() {
		flatFee = decimal.Zero
	}
	return &ThresholdPolicy{FreeAbove: freeAbove, FlatFee: flatFee}
}

// DefaultPolicy is the storefront's reference policy: free delivery above 500,
// otherwise a flat 40.
func DefaultPolicy() *ThresholdPolicy {
	return NewThresholdPolicy(decimal.NewFromInt(500), decimal.NewFromInt(40))
}

// Charge returns the delivery charge for subtotal.
func (p *ThresholdPolicy) Charge(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.FreeAbove) {
		return decimal.Zero
	}
	return p.FlatFee
}

// FreePolicy never charges for delivery.
type FreePolicy struct{}

// Charge always returns zero.
func (FreePolicy) Charge(decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
