package promotion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/shopspring/decimal"
)

// CouponResult is an accepted coupon.
type CouponResult struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// GiftCardResult is an accepted gift card.
type GiftCardResult struct {
	Code    string          `json:"code"`
	Applied decimal.Decimal `json:"applied"`
	Balance decimal.Decimal `json:"balance"`
}

// Rejection records why an applied code was not honoured.
type Rejection struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Applied is the promotion state of one checkout session: at most one coupon
// and one gift card. Setting a code replaces any code of the same kind.
type Applied struct {
	CouponCode   string `json:"coupon_code,omitempty"`
	GiftCardCode string `json:"gift_card_code,omitempty"`
}

func (a *Applied) SetCoupon(code string)   { a.CouponCode = Normalize(code) }
func (a *Applied) SetGiftCard(code string) { a.GiftCardCode = Normalize(code) }
func (a *Applied) RemoveCoupon()           { a.CouponCode = "" }
func (a *Applied) RemoveGiftCard()         { a.GiftCardCode = "" }

// Discounts is the outcome of resolving an Applied state against a subtotal.
type Discounts struct {
	Coupon          *CouponResult
	GiftCard        *GiftCardResult
	CouponDiscount  decimal.Decimal
	GiftCardApplied decimal.Decimal
	Rejections      []Rejection
}

// Resolver validates promotion codes against a Catalog.
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewResolver creates a resolver backed by catalog.
func NewResolver(catalog Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// ApplyCoupon resolves code against subtotal.
func (r *Resolver) ApplyCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*CouponResult, error) {
	const op = "promotion.apply_coupon"

	code = Normalize(code)
	if code == "" {
		return nil, ErrInvalidCoupon.WithOp(op)
	}

	cp, err := r.catalog.Coupon(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnknownCode) {
			return nil, ErrInvalidCoupon.WithOp(op)
		}
		return nil, domain.Internal(err, op, "failed to look up coupon")
	}

	if cp.MinOrder.IsPositive() && subtotal.LessThan(cp.MinOrder) {
		return nil, ErrCouponMinimumNotMet.WithOp(op)
	}

	return &CouponResult{Code: code, Discount: cp.Discount(subtotal)}, nil
}

// ApplyGiftCard resolves code against the amount still owed after the coupon.
func (r *Resolver) ApplyGiftCard(ctx context.Context, code string, remainingAfterCoupon decimal.Decimal) (*GiftCardResult, error) {
	const op = "promotion.apply_gift_card"

	code = Normalize(code)
	if code == "" {
		return nil, ErrInvalidGiftCard.WithOp(op)
	}

	gc, err := r.catalog.GiftCard(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnknownCode) {
			return nil, ErrInvalidGiftCard.WithOp(op)
		}
		return nil, domain.Internal(err, op, "failed to look up gift card")
	}

	return &GiftCardResult{
		Code:    code,
		Applied: gc.Apply(remainingAfterCoupon),
		Balance: gc.Balance,
	}, nil
}

// Resolve evaluates applied against subtotal, coupon first and then the gift
// card on the remainder. Unknown codes are reported as rejections rather than
// errors; an error is returned only when the catalog itself fails.
func (r *Resolver) Resolve(ctx context.Context, applied Applied, subtotal decimal.Decimal) (*Discounts, error) {
	out := &Discounts{}

	if applied.CouponCode != "" {
		res, err := r.ApplyCoupon(ctx, applied.CouponCode, subtotal)
		switch {
		case err == nil:
			out.Coupon = res
			out.CouponDiscount = res.Discount
		case domain.IsCode(err, domain.EINVALID):
			out.Rejections = append(out.Rejections, rejection(applied.CouponCode, err))
		default:
			return nil, err
		}
	}

	if applied.GiftCardCode != "" {
		remaining := subtotal.Sub(out.CouponDiscount)
		res, err := r.ApplyGiftCard(ctx, applied.GiftCardCode, remaining)
		switch {
		case err == nil:
			out.GiftCard = res
			out.GiftCardApplied = res.Applied
		case domain.IsCode(err, domain.EINVALID):
			out.Rejections = append(out.Rejections, rejection(applied.GiftCardCode, err))
		default:
			return nil, err
		}
	}

	if len(out.Rejections) > 0 {
		r.logger.DebugContext(ctx, "promotion codes rejected", "count", len(out.Rejections))
	}

	return out, nil
}

func rejection(code string, err error) Rejection {
	return Rejection{
		Code:    Normalize(code),
		Reason:  domain.ErrorReason(err),
		Message: domain.ErrorMessage(err),
	}
}
