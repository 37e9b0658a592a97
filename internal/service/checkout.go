package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/atelier/internal/address"
	"github.com/dukerupert/atelier/internal/billing"
	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/order"
	"github.com/dukerupert/atelier/internal/pricing"
	"github.com/dukerupert/atelier/internal/promotion"
	"github.com/dukerupert/atelier/internal/shipping"
	"github.com/dukerupert/atelier/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// CheckoutService provides the checkout flow: quoting a cart, taking payment
// and committing the resulting order.
type CheckoutService interface {
	// Quote prices a cart with its applied promotions. Unknown codes are
	// reported in Quote.Rejections rather than failing the quote.
	Quote(ctx context.Context, params QuoteParams) (*Quote, error)

	// BeginGatewayPayment checks every gateway precondition and creates a
	// gateway session the client can open in the native checkout UI.
	BeginGatewayPayment(ctx context.Context, params PlaceOrderParams) (*billing.Session, error)

	// CancelGatewayPayment abandons a gateway session. A PlaceOrder waiting on
	// it fails with ErrPaymentCancelled.
	CancelGatewayPayment(ctx context.Context, sessionID string) error

	// PlaceOrder validates the checkout, dispatches payment and commits the
	// order. Concurrent calls with the same IdempotencyKey share one result.
	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*Placement, error)

	// GetOrder retrieves a committed order with its items.
	GetOrder(ctx context.Context, orderID string) (*domain.OrderDetail, error)
}

// AddressBook looks up saved delivery addresses.
type AddressBook interface {
	// DefaultAddress returns the user's default address, or nil when none is saved.
	DefaultAddress(ctx context.Context, userID uuid.UUID) (*domain.Address, error)
}

// OrderReader loads committed orders.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.OrderDetail, error)

	// OrderByPaymentID returns the order recorded against an external payment
	// reference, or domain.ErrOrderNotFound.
	OrderByPaymentID(ctx context.Context, paymentID string) (*domain.OrderDetail, error)
}

// QuoteParams contains the cart to price.
type QuoteParams struct {
	Lines      []domain.CartLine
	Promotions promotion.Applied
}

// Quote is a priced cart.
type Quote struct {
	Pricing    pricing.Snapshot
	Coupon     *promotion.CouponResult
	GiftCard   *promotion.GiftCardResult
	Rejections []promotion.Rejection
}

// PlaceOrderParams contains everything needed to place an order.
type PlaceOrderParams struct {
	// IdempotencyKey identifies one checkout attempt. Double submissions
	// carrying the same key produce a single order.
	IdempotencyKey string

	// UserID is the shopper's identity as reported by the client. Invalid
	// values are handled by the order assembler.
	UserID string

	Lines         []domain.CartLine
	Promotions    promotion.Applied
	PaymentMethod domain.PaymentMethod

	// Address overrides the user's default address when set.
	Address *domain.Address
	Contact domain.Contact

	// SessionID is the gateway session from BeginGatewayPayment. The gateway
	// method requires it.
	SessionID string
}

// Placement is a committed order.
type Placement struct {
	OrderID       uuid.UUID
	OrderNumber   string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	PaymentID     *string
	Totals        pricing.Snapshot
}

// CheckoutDeps holds the collaborators of the checkout service.
type CheckoutDeps struct {
	Resolver  *promotion.Resolver
	Assembler *order.Assembler
	Gateway   billing.Gateway
	Committer Committer
	Addresses AddressBook
	Orders    OrderReader
	Policy    shipping.Policy
	Currency  string
	Logger    *slog.Logger

	// AddressValidator checks the delivery address; nil skips the check.
	AddressValidator address.Validator

	// AttemptTimeout bounds a PlaceOrder shared by duplicate submissions.
	// It defaults to DefaultAttemptTimeout.
	AttemptTimeout time.Duration
}

// DefaultAttemptTimeout covers the default gateway wait plus the commit.
const DefaultAttemptTimeout = 6 * time.Minute

type checkoutService struct {
	resolver  *promotion.Resolver
	assembler *order.Assembler
	gateway   billing.Gateway
	committer Committer
	addresses AddressBook
	validator address.Validator
	orders    OrderReader
	policy    shipping.Policy
	currency  string
	logger    *slog.Logger
	inflight  singleflight.Group
	attempt   time.Duration
}

// NewCheckoutService creates a new CheckoutService instance.
func NewCheckoutService(deps CheckoutDeps) CheckoutService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := deps.Policy
	if policy == nil {
		policy = shipping.DefaultPolicy()
	}
	attempt := deps.AttemptTimeout
	if attempt <= 0 {
		attempt = DefaultAttemptTimeout
	}
	return &checkoutService{
		resolver:  deps.Resolver,
		assembler: deps.Assembler,
		gateway:   deps.Gateway,
		committer: deps.Committer,
		addresses: deps.Addresses,
		validator: deps.AddressValidator,
		orders:    deps.Orders,
		policy:    policy,
		currency:  deps.Currency,
		logger:    logger,
		attempt:   attempt,
	}
}

// Quote prices a cart.
func (s *checkoutService) Quote(ctx context.Context, params QuoteParams) (*Quote, error) {
	cart, err := domain.CartFromLines(params.Lines)
	if err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, cart.Lines, params.Promotions)
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.QuotesComputed.Inc()
	}
	return q, nil
}

func (s *checkoutService) quote(ctx context.Context, lines []domain.CartLine, applied promotion.Applied) (*Quote, error) {
	subtotal := pricing.Subtotal(lines)

	disc, err := s.resolver.Resolve(ctx, applied, subtotal)
	if err != nil {
		return nil, err
	}
	recordPromotions(disc)

	return &Quote{
		Pricing:    pricing.ComputeTotals(lines, disc.CouponDiscount, disc.GiftCardApplied, s.policy),
		Coupon:     disc.Coupon,
		GiftCard:   disc.GiftCard,
		Rejections: disc.Rejections,
	}, nil
}

// GetOrder retrieves an order by id. Malformed ids are reported as not found.
func (s *checkoutService) GetOrder(ctx context.Context, orderID string) (*domain.OrderDetail, error) {
	id := order.ParseID(orderID)
	if id == nil {
		return nil, ErrOrderNotFound.WithOp("checkout.get_order")
	}
	return s.orders.GetOrder(ctx, *id)
}

func recordPromotions(d *promotion.Discounts) {
	if telemetry.Business == nil {
		return
	}
	if d.Coupon != nil {
		telemetry.Business.PromotionsResolved.WithLabelValues("coupon", "accepted").Inc()
	}
	if d.GiftCard != nil {
		telemetry.Business.PromotionsResolved.WithLabelValues("gift_card", "accepted").Inc()
	}
	for _, r := range d.Rejections {
		kind := "coupon"
		if r.Reason == domain.ReasonInvalidGiftCard {
			kind = "gift_card"
		}
		telemetry.Business.PromotionsResolved.WithLabelValues(kind, "rejected").Inc()
	}
}
