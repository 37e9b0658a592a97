package promotion

import (
	"context"

	"github.com/shopspring/decimal"
)

// StaticCatalog is an in-memory Catalog. It is read-only after construction
// and safe for concurrent use.
type StaticCatalog struct {
	coupons   map[string]Coupon
	giftCards map[string]GiftCard
}

// NewStaticCatalog builds a catalog from the given rules. Codes are normalized;
// a later rule with the same code replaces an earlier one.
func NewStaticCatalog(coupons []Coupon, giftCards []GiftCard) *StaticCatalog {
	c := &StaticCatalog{
		coupons:   make(map[string]Coupon, len(coupons)),
		giftCards: make(map[string]GiftCard, len(giftCards)),
	}
	for _, cp := range coupons {
		cp.Code = Normalize(cp.Code)
		c.coupons[cp.Code] = cp
	}
	for _, gc := range giftCards {
		gc.Code = Normalize(gc.Code)
		c.giftCards[gc.Code] = gc
	}
	return c
}

// DefaultCatalog returns the storefront's built-in promotions.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog(
		[]Coupon{
			{
				Code: "SAVE10",
				Kind: KindPercentage,
				Rate: decimal.RequireFromString("0.10"),
				Cap:  decimal.NewNullDecimal(decimal.NewFromInt(200)),
			},
			{
				Code:   "NEW50",
				Kind:   KindFixed,
				Amount: decimal.NewFromInt(50),
			},
		},
		[]GiftCard{
			{Code: "GIFT500", Balance: decimal.NewFromInt(500)},
			{Code: "GIFT1000", Balance: decimal.NewFromInt(1000)},
		},
	)
}

// Coupon implements Catalog.
func (c *StaticCatalog) Coupon(_ context.Context, code string) (Coupon, error) {
	cp, ok := c.coupons[Normalize(code)]
	if !ok {
		return Coupon{}, ErrUnknownCode
	}
	return cp, nil
}

// GiftCard implements Catalog.
func (c *StaticCatalog) GiftCard(_ context.Context, code string) (GiftCard, error) {
	gc, ok := c.giftCards[Normalize(code)]
	if !ok {
		return GiftCard{}, ErrUnknownCode
	}
	return gc, nil
}
