package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/middleware"
	"github.com/dukerupert/atelier/internal/promotion"
	"github.com/dukerupert/atelier/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type cartLineRequest struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name" validate:"required,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Quantity  int             `json:"quantity" validate:"omitempty,gte=1,lte=999"`
	Size      string          `json:"size" validate:"max=40"`
	Color     string          `json:"color" validate:"max=40"`
	ImageRef  string          `json:"image_ref" validate:"max=2048"`
}

type quoteRequest struct {
	Lines        []cartLineRequest `json:"lines" validate:"max=100,dive"`
	CouponCode   string            `json:"coupon_code" validate:"max=64"`
	GiftCardCode string            `json:"gift_card_code" validate:"max=64"`
}

type checkoutRequest struct {
	Lines          []cartLineRequest `json:"lines" validate:"max=100,dive"`
	CouponCode     string            `json:"coupon_code" validate:"max=64"`
	GiftCardCode   string            `json:"gift_card_code" validate:"max=64"`
	IdempotencyKey string            `json:"idempotency_key" validate:"max=128"`
	UserID         string            `json:"user_id"`
	PaymentMethod  string            `json:"payment_method" validate:"omitempty,oneof=cod giftcard gateway"`
	Address        *domain.Address   `json:"address"`
	Contact        domain.Contact    `json:"contact"`
	SessionID      string            `json:"session_id" validate:"max=255"`
}

func toCartLines(in []cartLineRequest) []domain.CartLine {
	lines := make([]domain.CartLine, len(in))
	for i, l := range in {
		lines[i] = domain.CartLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Size:      l.Size,
			Color:     l.Color,
			ImageRef:  l.ImageRef,
		}
	}
	return lines
}

func toApplied(coupon, giftCard string) promotion.Applied {
	var a promotion.Applied
	a.SetCoupon(coupon)
	a.SetGiftCard(giftCard)
	return a
}

// params builds service params. The Idempotency-Key header wins over the body field.
func (c checkoutRequest) params(r *http.Request) service.PlaceOrderParams {
	key := r.Header.Get(middleware.IdempotencyKeyHeader)
	if key == "" {
		key = c.IdempotencyKey
	}
	return service.PlaceOrderParams{
		IdempotencyKey: key,
		UserID:         c.UserID,
		Lines:          toCartLines(c.Lines),
		Promotions:     toApplied(c.CouponCode, c.GiftCardCode),
		PaymentMethod:  domain.PaymentMethod(c.PaymentMethod),
		Address:        c.Address,
		Contact:        c.Contact,
		SessionID:      c.SessionID,
	}
}

// NewValidator returns a validator that reports fields by their JSON names
// and compares decimal amounts numerically.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, v *validator.Validate, dst any) error {
	const op = "checkout.decode"

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.Errorf(domain.ETOOLARGE, op, "Request body is too large")
		}
		return domain.Invalid(op, "Request body is not valid JSON")
	}

	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.Internal(err, op, "failed to validate request")
		}
		var out error
		for _, fe := range verrs {
			out = domain.AddFieldError(out, fieldName(fe), fieldMessage(fe))
		}
		if ve, ok := out.(*domain.ValidationError); ok {
			ve.Op = op
		}
		return out
	}
	return nil
}

// fieldName drops the root struct name from the namespace:
// "checkoutRequest.lines[0].quantity" becomes "lines[0].quantity".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
