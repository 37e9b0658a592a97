// Package promotion resolves coupon and gift card codes into discount amounts.
//
// Coupons are evaluated against the cart subtotal first. Gift cards are then
// applied to whatever remains, bounded by their balance, so the resulting
// payable never goes negative and never depends on the order in which the
// shopper entered the codes.
package promotion

import (
	"context"
	"errors"
	"strings"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrUnknownCode is returned by a Catalog when no active promotion matches.
var ErrUnknownCode = errors.New("promotion: unknown code")

// Resolver errors surfaced to shoppers.
var (
	ErrInvalidCoupon = &domain.Error{
		Code:    domain.EINVALID,
		Reason:  domain.ReasonInvalidCoupon,
		Message: "Invalid coupon code",
	}
	ErrCouponMinimumNotMet = &domain.Error{
		Code:    domain.EINVALID,
		Reason:  domain.ReasonInvalidCoupon,
		Message: "Order total is below the minimum for this coupon",
	}
	ErrInvalidGiftCard = &domain.Error{
		Code:    domain.EINVALID,
		Reason:  domain.ReasonInvalidGiftCard,
		Message: "Invalid gift card code",
	}
)

// Kind distinguishes percentage coupons from fixed-amount coupons.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// Coupon is a discount rule identified by an uppercase code.
type Coupon struct {
	Code string
	Kind Kind

	// Rate is the fraction taken off for percentage coupons (0.10 = 10%).
	Rate decimal.Decimal
	// Amount is the flat discount for fixed coupons.
	Amount decimal.Decimal
	// Cap bounds a percentage discount. Invalid means unbounded.
	Cap decimal.NullDecimal
	// MinOrder is the smallest subtotal the coupon accepts. Zero means none.
	MinOrder decimal.Decimal
}

// Discount returns the discount this coupon grants on subtotal. It never
// exceeds subtotal and is never negative.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		discount = subtotal.Mul(c.Rate).Round(0)
		if c.Cap.Valid && discount.GreaterThan(c.Cap.Decimal) {
			discount = c.Cap.Decimal
		}
	case KindFixed:
		discount = c.Amount
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(discount, subtotal)
}

// GiftCard is a stored-value promotion.
type GiftCard struct {
	Code    string
	Balance decimal.Decimal
}

// Apply returns how much of the card covers remaining:
// min(balance, max(0, remaining)).
func (g GiftCard) Apply(remaining decimal.Decimal) decimal.Decimal {
	if !remaining.IsPositive() || !g.Balance.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(g.Balance, remaining)
}

// Catalog looks up promotions by normalized code.
type Catalog interface {
	Coupon(ctx context.Context, code string) (Coupon, error)
	GiftCard(ctx context.Context, code string) (GiftCard, error)
}

// Normalize trims and uppercases a code entered by a shopper.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
