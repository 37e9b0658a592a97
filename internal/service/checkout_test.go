package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/atelier/internal/address"
	"github.com/dukerupert/atelier/internal/billing"
	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/order"
	"github.com/dukerupert/atelier/internal/promotion"
	"github.com/dukerupert/atelier/internal/shipping"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopperID = "6a1f0b52-93c4-4e07-b8d2-5c0e7f3a9d11"

type testEnv struct {
	svc       CheckoutService
	gateway   *billing.MockGateway
	store     *memoryOrderStore
	addresses *mockAddressBook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := discardLogger()
	env := &testEnv{
		gateway:   billing.NewMockGateway(),
		store:     newMemoryOrderStore(),
		addresses: &mockAddressBook{addresses: map[uuid.UUID]domain.Address{}},
	}
	env.svc = NewCheckoutService(CheckoutDeps{
		Resolver:  promotion.NewResolver(promotion.DefaultCatalog(), logger),
		Assembler: order.NewAssembler(false, logger),
		Gateway:   env.gateway,
		Committer: NewCompensatingCommitter(env.store, logger),
		Addresses: env.addresses,
		Orders:    env.store,
		Policy:    shipping.DefaultPolicy(),
		Currency:  "inr",
		Logger:    logger,

		AddressValidator: address.NewBasicValidator(),
	})
	return env
}

func cartOf(unitPrice int64, qty int) []domain.CartLine {
	return []domain.CartLine{{
		ProductID: "0c6a3f7e-2b1d-4e8f-9a5c-7d3e1f2a4b6c",
		Name:      "Ikat Cotton Saree",
		UnitPrice: decimal.NewFromInt(unitPrice),
		Quantity:  qty,
		Size:      "Free",
		Color:     "rust",
	}}
}

func homeAddress() *domain.Address {
	return &domain.Address{
		FullName:     "Kavya Menon",
		AddressLine1: "22 Marine Drive",
		City:         "Kochi",
		State:        "KL",
		PostalCode:   "682031",
		Country:      "IN",
	}
}

func contact() domain.Contact {
	return domain.Contact{Name: "Kavya Menon", Email: "kavya@example.com", Phone: "+91 90000 11111"}
}

func baseParams(method domain.PaymentMethod) PlaceOrderParams {
	return PlaceOrderParams{
		UserID:        shopperID,
		Lines:         cartOf(600, 2),
		PaymentMethod: method,
		Address:       homeAddress(),
		Contact:       contact(),
	}
}

// withSession opens a gateway session for params the way a client does
// before showing the payment sheet.
func withSession(t *testing.T, env *testEnv, params PlaceOrderParams) PlaceOrderParams {
	t.Helper()
	sess, err := env.svc.BeginGatewayPayment(context.Background(), params)
	require.NoError(t, err)
	params.SessionID = sess.ID
	return params
}

func amountEquals(t *testing.T, want int64, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "%s: want %d, got %s", field, want, got)
}

// ============================================================================
// Quote
// ============================================================================

func TestQuote_CouponOnLargeCart(t *testing.T) {
	env := newTestEnv(t)

	q, err := env.svc.Quote(context.Background(), QuoteParams{
		Lines:      cartOf(600, 2),
		Promotions: promotion.Applied{CouponCode: "save10"},
	})
	require.NoError(t, err)

	amountEquals(t, 1200, q.Pricing.Subtotal, "subtotal")
	amountEquals(t, 120, q.Pricing.CouponDiscount, "coupon")
	amountEquals(t, 0, q.Pricing.DeliveryCharge, "delivery")
	amountEquals(t, 1080, q.Pricing.Payable, "payable")
	require.NotNil(t, q.Coupon)
	assert.Equal(t, "SAVE10", q.Coupon.Code)
}

func TestQuote_MergesRepeatedVariantAndRoundsPrice(t *testing.T) {
	env := newTestEnv(t)

	lines := append(cartOf(600, 1), cartOf(600, 1)...)
	lines[0].UnitPrice = decimal.RequireFromString("599.996")
	lines[1].UnitPrice = decimal.RequireFromString("600.004")

	q, err := env.svc.Quote(context.Background(), QuoteParams{Lines: lines})
	require.NoError(t, err)

	amountEquals(t, 1200, q.Pricing.Subtotal, "subtotal")
	assert.Equal(t, int64(120000), billing.ToMinorUnits(q.Pricing.Payable))
}

func TestPlaceOrder_StoresMergedLines(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams(domain.PaymentMethodCOD)
	params.Lines = append(cartOf(600, 1), cartOf(600, 1)...)

	p, err := env.svc.PlaceOrder(context.Background(), params)
	require.NoError(t, err)

	detail, err := env.svc.GetOrder(context.Background(), p.OrderID.String())
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, 2, detail.Items[0].Quantity)
}

func TestQuote_CouponAndGiftCardOnSmallCart(t *testing.T) {
	env := newTestEnv(t)

	q, err := env.svc.Quote(context.Background(), QuoteParams{
		Lines:      cartOf(150, 2),
		Promotions: promotion.Applied{CouponCode: "NEW50", GiftCardCode: "GIFT500"},
	})
	require.NoError(t, err)

	amountEquals(t, 50, q.Pricing.CouponDiscount, "coupon")
	amountEquals(t, 250, q.Pricing.GiftCardApplied, "gift card")
	amountEquals(t, 40, q.Pricing.DeliveryCharge, "delivery")
	amountEquals(t, 40, q.Pricing.Payable, "payable")
}

func TestQuote_ReportsRejectedCodes(t *testing.T) {
	env := newTestEnv(t)

	q, err := env.svc.Quote(context.Background(), QuoteParams{
		Lines:      cartOf(600, 1),
		Promotions: promotion.Applied{CouponCode: "FREESTUFF", GiftCardCode: "GIFT9999"},
	})
	require.NoError(t, err)

	require.Len(t, q.Rejections, 2)
	assert.Equal(t, domain.ReasonInvalidCoupon, q.Rejections[0].Reason)
	assert.Equal(t, domain.ReasonInvalidGiftCard, q.Rejections[1].Reason)
	amountEquals(t, 600, q.Pricing.Payable, "payable")
}

func TestQuote_NormalizesMalformedLines(t *testing.T) {
	env := newTestEnv(t)

	q, err := env.svc.Quote(context.Background(), QuoteParams{
		Lines: []domain.CartLine{
			{Name: "no quantity", UnitPrice: decimal.NewFromInt(100)},
			{Name: "negative price", UnitPrice: decimal.NewFromInt(-50), Quantity: 3},
		},
	})
	require.NoError(t, err)
	amountEquals(t, 100, q.Pricing.Subtotal, "subtotal")
}

// ============================================================================
// PlaceOrder: cash on delivery and gift card
// ============================================================================

func TestPlaceOrder_COD(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.svc.PlaceOrder(context.Background(), baseParams(domain.PaymentMethodCOD))
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, p.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, p.Status)
	assert.Nil(t, p.PaymentID)
	assert.Empty(t, env.gateway.Calls(), "cash on delivery must not touch the gateway")

	detail, err := env.svc.GetOrder(context.Background(), p.OrderID.String())
	require.NoError(t, err)
	assert.Equal(t, p.OrderNumber, detail.Order.OrderNumber)
	require.NotNil(t, detail.Order.UserID)
	assert.Equal(t, shopperID, detail.Order.UserID.String())
	assert.Len(t, detail.Items, 1)
}

func TestPlaceOrder_GiftCardCoversTotal(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams(domain.PaymentMethodGiftCard)
	params.Lines = cartOf(400, 2)
	params.Promotions = promotion.Applied{GiftCardCode: "gift1000"}

	p, err := env.svc.PlaceOrder(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, p.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, p.Status)
	require.NotNil(t, p.PaymentID)
	assert.Equal(t, "GIFT-GIFT1000", *p.PaymentID)
	amountEquals(t, 800, p.Totals.GiftCardApplied, "gift card")
	amountEquals(t, 0, p.Totals.Payable, "payable")
	assert.Empty(t, env.gateway.Calls())
}

func TestPlaceOrder_GiftCardInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams(domain.PaymentMethodGiftCard)
	params.Lines = cartOf(400, 2)
	params.Promotions = promotion.Applied{GiftCardCode: "GIFT500"}

	_, err := env.svc.PlaceOrder(context.Background(), params)

	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, domain.ReasonInsufficientBalance, domain.ErrorReason(err))
	assert.Equal(t, 0, env.store.orderCount())
}

func TestPlaceOrder_GiftCardMethodWithoutGiftCard(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.PlaceOrder(context.Background(), baseParams(domain.PaymentMethodGiftCard))

	assert.True(t, errors.Is(err, ErrGiftCardRequired))
}

func TestPlaceOrder_CODWithNothingToPay(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams(domain.PaymentMethodCOD)
	params.Lines = cartOf(400, 2)
	params.Promotions = promotion.Applied{GiftCardCode: "GIFT1000"}

	_, err := env.svc.PlaceOrder(context.Background(), params)
	assert.True(t, errors.Is(err, ErrNothingToPay))
}

// ============================================================================
// PlaceOrder: preconditions
// ============================================================================

func TestPlaceOrder_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlaceOrderParams)
		wantErr error
	}{
		{
			name:    "empty cart",
			mutate:  func(p *PlaceOrderParams) { p.Lines = nil },
			wantErr: domain.ErrEmptyCart,
		},
		{
			name:    "unknown payment method",
			mutate:  func(p *PlaceOrderParams) { p.PaymentMethod = "upi" },
			wantErr: ErrInvalidPaymentMethod,
		},
		{
			name: "guest without address",
			mutate: func(p *PlaceOrderParams) {
				p.UserID = ""
				p.Address = nil
			},
			wantErr: ErrAddressRequired,
		},
		{
			name:    "user without saved address",
			mutate:  func(p *PlaceOrderParams) { p.Address = &domain.Address{} },
			wantErr: ErrAddressRequired,
		},
		{
			name: "gateway without phone",
			mutate: func(p *PlaceOrderParams) {
				p.PaymentMethod = domain.PaymentMethodGateway
				p.Contact.Phone = ""
			},
			wantErr: ErrContactRequired,
		},
		{
			name:    "unknown coupon",
			mutate:  func(p *PlaceOrderParams) { p.Promotions.SetCoupon("EXPIRED20") },
			wantErr: promotion.ErrInvalidCoupon,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			params := baseParams(domain.PaymentMethodCOD)
			tt.mutate(&params)

			_, err := env.svc.PlaceOrder(context.Background(), params)

			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Empty(t, env.gateway.Calls())
			assert.Equal(t, 0, env.store.orderCount())
		})
	}
}

func TestPlaceOrder_UsesDefaultAddress(t *testing.T) {
	env := newTestEnv(t)
	env.addresses.addresses[uuid.MustParse(shopperID)] = *homeAddress()

	params := baseParams(domain.PaymentMethodCOD)
	params.Address = nil

	p, err := env.svc.PlaceOrder(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 1, env.addresses.calls)

	detail, err := env.svc.GetOrder(context.Background(), p.OrderID.String())
	require.NoError(t, err)
	assert.Equal(t, "Kochi", detail.Order.ShippingAddress.City)
}

func TestPlaceOrder_AddressBookFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addresses.err = errors.New("pool closed")

	params := baseParams(domain.PaymentMethodCOD)
	params.Address = nil

	_, err := env.svc.PlaceOrder(context.Background(), params)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestPlaceOrder_IncompleteAddress(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams(domain.PaymentMethodGateway)
	params.Address = &domain.Address{AddressLine1: "22 Marine Drive", City: "Kochi"}

	_, err := env.svc.PlaceOrder(context.Background(), params)
	require.ErrorIs(t, err, ErrInvalidAddress)
	assert.Contains(t, domain.GetValidationFields(err), "address.postal_code")
	assert.Empty(t, env.gateway.Calls(), "no gateway call for an undeliverable order")
	assert.Empty(t, env.store.orders)
}

func TestPlaceOrder_StoresNormalizedAddress(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams(domain.PaymentMethodCOD)
	params.Address.Country = " in"
	params.Address.City = "Kochi  "

	p, err := env.svc.PlaceOrder(context.Background(), params)
	require.NoError(t, err)

	detail, err := env.svc.GetOrder(context.Background(), p.OrderID.String())
	require.NoError(t, err)
	assert.Equal(t, "IN", detail.Order.ShippingAddress.Country)
	assert.Equal(t, "Kochi", detail.Order.ShippingAddress.City)
}

func TestPlaceOrder_InvalidIdentityProducesOwnerlessOrder(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams(domain.PaymentMethodCOD)
	params.UserID = "undefined"

	p, err := env.svc.PlaceOrder(context.Background(), params)
	require.NoError(t, err)

	detail, err := env.svc.GetOrder(context.Background(), p.OrderID.String())
	require.NoError(t, err)
	assert.Nil(t, detail.Order.UserID)
}

// ============================================================================
// PlaceOrder: gateway
// ============================================================================

func TestPlaceOrder_GatewaySuccess(t *testing.T) {
	env := newTestEnv(t)

	var checkout billing.CheckoutParams
	env.gateway.CheckoutFunc = func(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutResult, error) {
		checkout = params
		return &billing.CheckoutResult{ExternalPaymentID: "pay_Nx81"}, nil
	}

	params := withSession(t, env, baseParams(domain.PaymentMethodGateway))
	p, err := env.svc.PlaceOrder(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, p.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, p.Status)
	require.NotNil(t, p.PaymentID)
	assert.Equal(t, "pay_Nx81", *p.PaymentID)

	assert.Equal(t, params.SessionID, checkout.SessionID)
	assert.Equal(t, int64(120000), checkout.AmountMinor)
	assert.Equal(t, "inr", checkout.Currency)
	assert.Equal(t, "Kavya Menon", checkout.PayerName)
	assert.Equal(t, "+91 90000 11111", checkout.PayerContact)

	calls := env.gateway.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "CreateSession(120000, inr)", calls[0])
}

func TestPlaceOrder_GatewayRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.PlaceOrder(context.Background(), baseParams(domain.PaymentMethodGateway))

	require.ErrorIs(t, err, ErrSessionRequired)
	assert.Equal(t, domain.ReasonValidation, domain.ErrorReason(err))
	assert.Empty(t, env.gateway.Calls(), "no session may be opened behind the client's back")
	assert.Equal(t, 0, env.store.orderCount())
}

func TestPlaceOrder_ReplayedSessionReturnsExistingOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	params := withSession(t, env, baseParams(domain.PaymentMethodGateway))
	params.IdempotencyKey = "chk_first"
	first, err := env.svc.PlaceOrder(ctx, params)
	require.NoError(t, err)

	params.IdempotencyKey = "chk_second"
	second, err := env.svc.PlaceOrder(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, *first.PaymentID, *second.PaymentID)
	assert.Equal(t, 1, env.store.orderCount(), "one payment backs one order")
}

func TestPlaceOrder_ConcurrentReplayLosesToUniquePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	params := withSession(t, env, baseParams(domain.PaymentMethodGateway))

	// Another request commits the same payment between our lookup and commit.
	var once sync.Once
	var winner uuid.UUID
	env.gateway.CheckoutFunc = func(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutResult, error) {
		ref := "pay_" + p.SessionID
		once.Do(func() {
			env.store.mu.Lock()
			defer env.store.mu.Unlock()
			winner = uuid.New()
			env.store.orders[winner] = domain.OrderRecord{
				ID:            winner,
				OrderNumber:   "ORD-20260314-WINNER",
				Status:        domain.OrderStatusConfirmed,
				PaymentStatus: domain.PaymentStatusPaid,
				PaymentID:     &ref,
			}
		})
		return &billing.CheckoutResult{ExternalPaymentID: ref}, nil
	}
	env.svc = NewCheckoutService(CheckoutDeps{
		Resolver:  promotion.NewResolver(promotion.DefaultCatalog(), discardLogger()),
		Assembler: order.NewAssembler(false, discardLogger()),
		Gateway:   env.gateway,
		Committer: NewCompensatingCommitter(env.store, discardLogger()),
		Orders:    &racingReader{memoryOrderStore: env.store},
		Logger:    discardLogger(),
	})

	p, err := env.svc.PlaceOrder(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, winner, p.OrderID)
	assert.Equal(t, 1, env.store.orderCount())
}

func TestPlaceOrder_GatewayWithExistingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	params := baseParams(domain.PaymentMethodGateway)
	params.IdempotencyKey = "chk_7f3a"

	sess, err := env.svc.BeginGatewayPayment(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), sess.AmountMinor)

	params.SessionID = sess.ID
	p, err := env.svc.PlaceOrder(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, "pay_"+sess.ID, *p.PaymentID)

	creates := 0
	for _, c := range env.gateway.Calls() {
		if c == "CreateSession(120000, inr)" {
			creates++
		}
	}
	assert.Equal(t, 1, creates, "an existing session must be reused")
}

func TestPlaceOrder_GatewayCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	params := withSession(t, env, baseParams(domain.PaymentMethodGateway))
	require.NoError(t, env.svc.CancelGatewayPayment(ctx, params.SessionID))

	_, err := env.svc.PlaceOrder(ctx, params)

	assert.True(t, errors.Is(err, ErrPaymentCancelled))
	assert.Equal(t, domain.ReasonPaymentCancelled, domain.ErrorReason(err))
	assert.False(t, errors.Is(err, ErrPaymentFailed), "cancellation is not a failure")
	_, hasFallback := FallbackMethod(err)
	assert.False(t, hasFallback)
	assert.Equal(t, 0, env.store.orderCount())
}

func TestPlaceOrder_GatewayFailed(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.CheckoutFunc = func(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutResult, error) {
		return nil, fmt.Errorf("%w: %w", billing.ErrPaymentFailed, &billing.GatewayError{Code: "card_declined"})
	}

	_, err := env.svc.PlaceOrder(context.Background(), withSession(t, env, baseParams(domain.PaymentMethodGateway)))

	assert.True(t, errors.Is(err, ErrPaymentFailed))
	assert.Equal(t, domain.ReasonPaymentFailed, domain.ErrorReason(err))
	_, hasFallback := FallbackMethod(err)
	assert.False(t, hasFallback)
	assert.Equal(t, 0, env.store.orderCount())
}

func TestPlaceOrder_GatewayUnavailableOffersCOD(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.CreateSessionFunc = func(ctx context.Context, params billing.SessionParams) (*billing.Session, error) {
		return nil, fmt.Errorf("%w: dial tcp: i/o timeout", billing.ErrGatewayUnavailable)
	}

	_, err := env.svc.BeginGatewayPayment(context.Background(), baseParams(domain.PaymentMethodGateway))

	require.Error(t, err)
	assert.Equal(t, domain.ReasonPaymentFailed, domain.ErrorReason(err))
	method, ok := FallbackMethod(err)
	assert.True(t, ok)
	assert.Equal(t, domain.PaymentMethodCOD, method)
	assert.Equal(t, 0, env.store.orderCount(), "an outage must never produce a paid order")

	// The fallback path works with the same cart.
	p, err := env.svc.PlaceOrder(context.Background(), baseParams(method))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, p.PaymentStatus)
}

func TestPlaceOrder_GatewayWithoutReferenceIsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.CheckoutFunc = func(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutResult, error) {
		return &billing.CheckoutResult{}, nil
	}

	_, err := env.svc.PlaceOrder(context.Background(), withSession(t, env, baseParams(domain.PaymentMethodGateway)))

	assert.True(t, errors.Is(err, ErrPaymentFailed))
	assert.Equal(t, 0, env.store.orderCount())
}

func TestBeginGatewayPayment_RejectsOtherMethods(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.BeginGatewayPayment(context.Background(), baseParams(domain.PaymentMethodCOD))

	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Empty(t, env.gateway.Calls())
}

func TestCancelGatewayPayment_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.CancelGatewayPayment(context.Background(), "")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

// ============================================================================
// PlaceOrder: commit
// ============================================================================

func TestPlaceOrder_ItemsFailureLeavesNoOrder(t *testing.T) {
	env := newTestEnv(t)
	env.store.insertItemsErr = errors.New("batch insert failed")

	_, err := env.svc.PlaceOrder(context.Background(), baseParams(domain.PaymentMethodCOD))

	assert.True(t, errors.Is(err, ErrOrderItemsFailed))
	assert.Equal(t, 0, env.store.orderCount())
}

func TestPlaceOrder_OrderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.insertOrderErr = errors.New("duplicate key value violates unique constraint")

	_, err := env.svc.PlaceOrder(context.Background(), baseParams(domain.PaymentMethodCOD))

	assert.True(t, errors.Is(err, ErrOrderCreationFailed))
	assert.Equal(t, domain.ReasonOrderCreationFailed, domain.ErrorReason(err))
}

func TestPlaceOrder_DuplicateSubmissionsShareOneOrder(t *testing.T) {
	env := newTestEnv(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env.gateway.CheckoutFunc = func(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutResult, error) {
		once.Do(func() { close(started) })
		<-release
		return &billing.CheckoutResult{ExternalPaymentID: "pay_once"}, nil
	}

	params := withSession(t, env, baseParams(domain.PaymentMethodGateway))
	params.IdempotencyKey = "chk_double_tap"

	const submissions = 4
	results := make([]*Placement, submissions)
	errs := make([]error, submissions)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = env.svc.PlaceOrder(context.Background(), params)
	}()
	<-started

	for i := 1; i < submissions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.PlaceOrder(context.Background(), params)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < submissions; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].OrderID, results[i].OrderID)
	}
	assert.Equal(t, 1, env.store.orderCount())
}

func TestPlaceOrder_SharedAttemptOutlivesFirstCaller(t *testing.T) {
	env := newTestEnv(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env.gateway.CheckoutFunc = func(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutResult, error) {
		once.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", billing.ErrPaymentFailed, ctx.Err())
		case <-release:
			return &billing.CheckoutResult{ExternalPaymentID: "pay_shared"}, nil
		}
	}

	params := withSession(t, env, baseParams(domain.PaymentMethodGateway))
	params.IdempotencyKey = "chk_disconnect"

	firstCtx, disconnect := context.WithCancel(context.Background())
	var (
		wg            sync.WaitGroup
		first, second *Placement
		firstErr      error
		secondErr     error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = env.svc.PlaceOrder(firstCtx, params)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		second, secondErr = env.svc.PlaceOrder(context.Background(), params)
	}()
	time.Sleep(50 * time.Millisecond)

	disconnect()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, secondErr)
	require.NoError(t, firstErr)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, env.store.orderCount())
}

// ============================================================================
// GetOrder
// ============================================================================

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"not-an-id", uuid.NewString()} {
		_, err := env.svc.GetOrder(context.Background(), id)
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err), id)
	}
}

func TestPlaceOrder_RecordsMetrics(t *testing.T) {
	metrics := withTestMetrics(t)
	env := newTestEnv(t)

	_, err := env.svc.PlaceOrder(context.Background(), baseParams(domain.PaymentMethodCOD))
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OrdersCreated.WithLabelValues("cod", "pending")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PaymentSucceeded.WithLabelValues("cod")))
}
