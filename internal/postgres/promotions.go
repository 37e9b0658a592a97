package postgres

import (
	"context"
	"errors"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/promotion"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PromotionCatalog reads coupons and gift cards from the promotions table.
// Inactive rows are treated as unknown codes.
type PromotionCatalog struct {
	db DBTX
}

var _ promotion.Catalog = (*PromotionCatalog)(nil)

// NewPromotionCatalog creates a new PostgreSQL-backed promotion catalog.
func NewPromotionCatalog(db DBTX) *PromotionCatalog {
	return &PromotionCatalog{db: db}
}

const kindGiftCard = "gift_card"

// Coupon implements promotion.Catalog.
func (c *PromotionCatalog) Coupon(ctx context.Context, code string) (promotion.Coupon, error) {
	var (
		cp                              promotion.Coupon
		kind                            string
		rate, amount, capAmt, minAmount pgtype.Numeric
	)
	err := c.db.QueryRow(ctx, `
		SELECT code, kind, rate, amount, cap, min_order
		FROM promotions
		WHERE code = $1 AND active AND kind IN ('percentage', 'fixed')`,
		promotion.Normalize(code),
	).Scan(&cp.Code, &kind, &rate, &amount, &capAmt, &minAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promotion.Coupon{}, promotion.ErrUnknownCode
		}
		return promotion.Coupon{}, domain.Internal(err, "promotion.coupon", "failed to load coupon")
	}

	cp.Kind = promotion.Kind(kind)
	cp.Rate = decimalFromNumeric(rate)
	cp.Amount = decimalFromNumeric(amount)
	cp.Cap = nullDecimalFromNumeric(capAmt)
	cp.MinOrder = decimalFromNumeric(minAmount)
	return cp, nil
}

// GiftCard implements promotion.Catalog.
func (c *PromotionCatalog) GiftCard(ctx context.Context, code string) (promotion.GiftCard, error) {
	var (
		gc      promotion.GiftCard
		balance pgtype.Numeric
	)
	err := c.db.QueryRow(ctx, `
		SELECT code, balance
		FROM promotions
		WHERE code = $1 AND active AND kind = $2`,
		promotion.Normalize(code), kindGiftCard,
	).Scan(&gc.Code, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promotion.GiftCard{}, promotion.ErrUnknownCode
		}
		return promotion.GiftCard{}, domain.Internal(err, "promotion.gift_card", "failed to load gift card")
	}

	gc.Balance = decimalFromNumeric(balance)
	return gc, nil
}

// UpsertCoupon creates or replaces a coupon.
func (c *PromotionCatalog) UpsertCoupon(ctx context.Context, cp promotion.Coupon) error {
	_, err := c.db.Exec(ctx, `
		INSERT INTO promotions (code, kind, rate, amount, cap, min_order, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind, rate = EXCLUDED.rate, amount = EXCLUDED.amount,
			cap = EXCLUDED.cap, min_order = EXCLUDED.min_order, active = TRUE`,
		promotion.Normalize(cp.Code),
		string(cp.Kind),
		numericFromDecimal(cp.Rate),
		numericFromDecimal(cp.Amount),
		numericFromNullDecimal(cp.Cap),
		numericFromDecimal(cp.MinOrder),
	)
	if err != nil {
		return domain.Internal(err, "promotion.upsert_coupon", "failed to save coupon")
	}
	return nil
}

// Deactivate disables a code without deleting it.
func (c *PromotionCatalog) Deactivate(ctx context.Context, code string) error {
	tag, err := c.db.Exec(ctx, `UPDATE promotions SET active = FALSE WHERE code = $1`, promotion.Normalize(code))
	if err != nil {
		return domain.Internal(err, "promotion.deactivate", "failed to deactivate promotion")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("promotion.deactivate", "promotion", code)
	}
	return nil
}
