package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/handler"
	"github.com/dukerupert/atelier/internal/middleware"
	"github.com/dukerupert/atelier/internal/pricing"
	"github.com/dukerupert/atelier/internal/promotion"
	"github.com/dukerupert/atelier/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutHandler exposes the checkout service as JSON endpoints.
type CheckoutHandler struct {
	service  service.CheckoutService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(svc service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		service:  svc,
		validate: NewValidator(),
		logger:   logger,
	}
}

type quoteResponse struct {
	Pricing    pricing.Snapshot          `json:"pricing"`
	Coupon     *promotion.CouponResult   `json:"coupon,omitempty"`
	GiftCard   *promotion.GiftCardResult `json:"gift_card,omitempty"`
	Rejections []promotion.Rejection     `json:"rejections"`
}

// Quote handles POST /api/checkout/quote
//
// Prices a cart with its promotion codes. Unknown codes come back in
// "rejections" with a 200; the cart preview shows them next to the input.
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decode(r, h.validate, &req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	q, err := h.service.Quote(r.Context(), service.QuoteParams{
		Lines:      toCartLines(req.Lines),
		Promotions: toApplied(req.CouponCode, req.GiftCardCode),
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	rejections := q.Rejections
	if rejections == nil {
		rejections = []promotion.Rejection{}
	}
	handler.WriteJSON(w, http.StatusOK, quoteResponse{
		Pricing:    q.Pricing,
		Coupon:     q.Coupon,
		GiftCard:   q.GiftCard,
		Rejections: rejections,
	})
}

// CreateSession handles POST /api/checkout/sessions
//
// Creates a gateway session for the native checkout sheet after checking every
// precondition, so the sheet never opens for a checkout that cannot complete.
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, h.validate, &req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	sess, err := h.service.BeginGatewayPayment(r.Context(), req.params(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context(), h.logger).Info("gateway session created",
		"session_id", sess.ID,
		"amount_minor", sess.AmountMinor,
	)
	handler.WriteJSON(w, http.StatusCreated, sess)
}

// CancelSession handles POST /api/checkout/sessions/{id}/cancel
func (h *CheckoutHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelGatewayPayment(r.Context(), r.PathValue("id")); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placementResponse struct {
	ID            uuid.UUID            `json:"id"`
	OrderNumber   string               `json:"order_number"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	PaymentID     *string              `json:"payment_id,omitempty"`
	Totals        pricing.Snapshot     `json:"totals"`
}

// PlaceOrder handles POST /api/checkout/orders
//
// For gateway payments the request stays open until the shopper completes or
// dismisses the checkout sheet.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, h.validate, &req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}
	if req.PaymentMethod == "" {
		handler.ValidationErrorResponse(w, r,
			domain.NewValidationError("checkout.decode", "payment_method", "is required"))
		return
	}

	p, err := h.service.PlaceOrder(r.Context(), req.params(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, placementResponse{
		ID:            p.OrderID,
		OrderNumber:   p.OrderNumber,
		Status:        p.Status,
		PaymentStatus: p.PaymentStatus,
		PaymentID:     p.PaymentID,
		Totals:        p.Totals,
	})
}

type orderItemResponse struct {
	ProductID   *uuid.UUID      `json:"product_id"`
	ProductName string          `json:"product_name"`
	Image       string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
}

type orderResponse struct {
	ID              uuid.UUID            `json:"id"`
	OrderNumber     string               `json:"order_number"`
	UserID          *uuid.UUID           `json:"user_id"`
	Status          domain.OrderStatus   `json:"status"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	PaymentID       *string              `json:"payment_id"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	Subtotal        decimal.Decimal      `json:"subtotal"`
	DiscountAmount  decimal.Decimal      `json:"discount_amount"`
	ShippingAmount  decimal.Decimal      `json:"shipping_amount"`
	ShippingAddress domain.Address       `json:"shipping_address"`
	CreatedAt       time.Time            `json:"created_at"`
	Items           []orderItemResponse  `json:"items"`
}

// GetOrder handles GET /api/orders/{id}
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	o := detail.Order
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Status:          o.Status,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		PaymentID:       o.PaymentID,
		TotalAmount:     o.TotalAmount,
		Subtotal:        o.Subtotal,
		DiscountAmount:  o.DiscountAmount,
		ShippingAmount:  o.ShippingAmount,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
		Items:           make([]orderItemResponse, len(detail.Items)),
	}
	for i, it := range detail.Items {
		resp.Items[i] = orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Image:       it.ProductImage,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
			Size:        it.Size,
			Color:       it.Color,
		}
	}

	handler.WriteJSON(w, http.StatusOK, resp)
}
