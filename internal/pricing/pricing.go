// Package pricing computes cart totals. Everything here is a pure function of
// its inputs; the same calculation backs the cart preview and checkout.
package pricing

import (
	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/shipping"
	"github.com/shopspring/decimal"
)

// Snapshot is the derived price breakdown for a cart. It is never stored.
type Snapshot struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	CouponDiscount  decimal.Decimal `json:"coupon_discount"`
	GiftCardApplied decimal.Decimal `json:"gift_card_applied"`
	DeliveryCharge  decimal.Decimal `json:"delivery_charge"`
	Payable         decimal.Decimal `json:"payable"`
}

// Discount returns the total discount, coupon plus gift card.
func (s Snapshot) Discount() decimal.Decimal {
	return s.CouponDiscount.Add(s.GiftCardApplied)
}

// Subtotal sums unit price × quantity over lines.
func Subtotal(lines []domain.CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// ComputeTotals builds the pricing snapshot.
//
// Lines are expected to be normalized already (see domain.NormalizeLines).
// Negative discounts are treated as zero. The delivery charge is taken from
// policy on the subtotal, and payable is
//
//	max(0, subtotal - couponDiscount - giftCardApplied + deliveryCharge)
func ComputeTotals(lines []domain.CartLine, couponDiscount, giftCardApplied decimal.Decimal, policy shipping.Policy) Snapshot {
	if policy == nil {
		policy = shipping.FreePolicy{}
	}

	subtotal := Subtotal(lines)
	coupon := nonNegative(couponDiscount)
	gift := nonNegative(giftCardApplied)
	delivery := nonNegative(policy.Charge(subtotal))

	payable := subtotal.Sub(coupon).Sub(gift).Add(delivery)

	return Snapshot{
		Subtotal:        subtotal,
		CouponDiscount:  coupon,
		GiftCardApplied: gift,
		DeliveryCharge:  delivery,
		Payable:         nonNegative(payable),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
