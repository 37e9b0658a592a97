package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dukerupert/atelier/internal/billing"
	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/order"
	"github.com/dukerupert/atelier/internal/telemetry"
)

// checkout is a validated checkout attempt, ready for payment.
type checkout struct {
	params  PlaceOrderParams
	cart    *domain.Cart
	quote   *Quote
	address domain.Address
}

// prepare enforces the checkout preconditions. Nothing external is called
// for payment until every one of them holds.
func (s *checkoutService) prepare(ctx context.Context, op string, p PlaceOrderParams) (*checkout, error) {
	cart, err := domain.CartFromLines(p.Lines)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart.WithOp(op)
	}
	if !p.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod.WithOp(op)
	}

	address, err := s.resolveAddress(ctx, op, p)
	if err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, cart.Lines, p.Promotions)
	if err != nil {
		return nil, err
	}
	if len(q.Rejections) > 0 {
		r := q.Rejections[0]
		return nil, &domain.Error{Code: domain.EINVALID, Reason: r.Reason, Message: r.Message, Op: op}
	}

	payable := q.Pricing.Payable
	switch p.PaymentMethod {
	case domain.PaymentMethodCOD:
		if !payable.IsPositive() {
			return nil, ErrNothingToPay.WithOp(op)
		}
	case domain.PaymentMethodGateway:
		if !payable.IsPositive() {
			return nil, ErrNothingToPay.WithOp(op)
		}
		if !p.Contact.HasGatewayDetails() {
			return nil, ErrContactRequired.WithOp(op)
		}
	case domain.PaymentMethodGiftCard:
		if q.GiftCard == nil {
			return nil, ErrGiftCardRequired.WithOp(op)
		}
		if !payable.IsZero() {
			return nil, ErrInsufficientBalance.WithOp(op)
		}
	}

	return &checkout{params: p, cart: cart, quote: q, address: address}, nil
}

func (s *checkoutService) resolveAddress(ctx context.Context, op string, p PlaceOrderParams) (domain.Address, error) {
	addr, err := s.lookupAddress(ctx, op, p)
	if err != nil || s.validator == nil {
		return addr, err
	}

	res, err := s.validator.Validate(ctx, addr)
	if err != nil {
		return domain.Address{}, domain.Internal(err, op, "failed to validate address")
	}
	if !res.IsValid {
		var fields error
		for _, e := range res.Errors {
			fields = domain.AddFieldError(fields, "address."+e.Field, e.Message)
		}
		return domain.Address{}, ErrInvalidAddress.Wrap(op, fields)
	}
	return res.NormalizedAddress, nil
}

// lookupAddress prefers the address on the request and falls back to the
// user's saved default.
func (s *checkoutService) lookupAddress(ctx context.Context, op string, p PlaceOrderParams) (domain.Address, error) {
	if p.Address != nil && !p.Address.IsZero() {
		return *p.Address, nil
	}

	userID := order.ParseID(p.UserID)
	if userID == nil || s.addresses == nil {
		return domain.Address{}, ErrAddressRequired.WithOp(op)
	}

	addr, err := s.addresses.DefaultAddress(ctx, *userID)
	if err != nil {
		return domain.Address{}, domain.Internal(err, op, "failed to load default address")
	}
	if addr == nil || addr.IsZero() {
		return domain.Address{}, ErrAddressRequired.WithOp(op)
	}
	return *addr, nil
}

// BeginGatewayPayment creates a gateway session for a checkout.
func (s *checkoutService) BeginGatewayPayment(ctx context.Context, p PlaceOrderParams) (*billing.Session, error) {
	const op = "checkout.begin_gateway_payment"

	if p.PaymentMethod == "" {
		p.PaymentMethod = domain.PaymentMethodGateway
	}
	if p.PaymentMethod != domain.PaymentMethodGateway {
		return nil, domain.Invalid(op, "Payment sessions are only used for online payment")
	}

	co, err := s.prepare(ctx, op, p)
	if err != nil {
		return nil, err
	}

	sess, err := s.createSession(ctx, co)
	if err != nil {
		return nil, s.gatewayError(ctx, op, err)
	}
	return sess, nil
}

// CancelGatewayPayment cancels a gateway session.
func (s *checkoutService) CancelGatewayPayment(ctx context.Context, sessionID string) error {
	const op = "checkout.cancel_gateway_payment"

	if sessionID == "" {
		return domain.Invalid(op, "Session id is required")
	}

	start := time.Now()
	err := s.gateway.CancelSession(ctx, sessionID)
	observeGateway("cancel_session", start)
	if err != nil {
		if errors.Is(err, billing.ErrGatewayUnavailable) {
			return ErrGatewayUnavailable.Wrap(op, err)
		}
		return domain.Internal(err, op, "failed to cancel payment session")
	}

	s.logger.InfoContext(ctx, "gateway session cancelled", "session_id", sessionID)
	return nil
}

// PlaceOrder places an order.
func (s *checkoutService) PlaceOrder(ctx context.Context, p PlaceOrderParams) (*Placement, error) {
	if p.IdempotencyKey == "" {
		return s.placeOrder(ctx, p)
	}

	// Joined submissions wait on this call, so it must outlive the request
	// that happened to start it.
	v, err, shared := s.inflight.Do(p.IdempotencyKey, func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.attempt)
		defer cancel()
		return s.placeOrder(attemptCtx, p)
	})
	if shared {
		s.logger.InfoContext(ctx, "duplicate order submission joined in-flight attempt",
			"idempotency_key", p.IdempotencyKey,
		)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Placement), nil
}

func (s *checkoutService) placeOrder(ctx context.Context, p PlaceOrderParams) (*Placement, error) {
	const op = "checkout.place_order"

	method := string(p.PaymentMethod)
	if telemetry.Business != nil {
		telemetry.Business.CheckoutStarted.WithLabelValues(method).Inc()
	}

	co, err := s.prepare(ctx, op, p)
	if err != nil {
		return nil, err
	}
	if p.PaymentMethod == domain.PaymentMethodGateway && p.SessionID == "" {
		return nil, ErrSessionRequired.WithOp(op)
	}

	paymentStatus, paymentID, err := s.dispatch(ctx, co)
	if err != nil {
		return nil, err
	}

	gatewayPaid := paymentStatus == domain.PaymentStatusPaid && p.PaymentMethod == domain.PaymentMethodGateway
	if gatewayPaid {
		if prior := s.placedFor(ctx, paymentID, co); prior != nil {
			return prior, nil
		}
	}

	asm, err := s.assembler.Assemble(order.AssembleParams{
		UserID:        p.UserID,
		Lines:         co.cart.Lines,
		Pricing:       co.quote.Pricing,
		PaymentMethod: p.PaymentMethod,
		PaymentStatus: paymentStatus,
		PaymentID:     paymentID,
		Address:       co.address,
		Contact:       p.Contact,
	})
	if err != nil {
		return nil, err
	}

	committed, err := s.committer.Commit(ctx, asm)
	if err != nil {
		if gatewayPaid {
			// A concurrent replay of the session may have committed first.
			if prior := s.placedFor(ctx, paymentID, co); prior != nil {
				return prior, nil
			}
			// Money was taken but no order exists; this needs reconciliation.
			s.logger.ErrorContext(ctx, "payment captured but order commit failed",
				"payment_id", paymentID,
				"order_number", asm.Order.OrderNumber,
				"error", err,
			)
			telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
				"payment_id":   paymentID,
				"order_number": asm.Order.OrderNumber,
			})
		}
		return nil, err
	}

	rec := asm.Order
	if telemetry.Business != nil {
		telemetry.Business.OrdersCreated.WithLabelValues(method, string(rec.Status)).Inc()
		telemetry.Business.OrderValue.WithLabelValues(method).Observe(rec.TotalAmount.InexactFloat64())
		telemetry.Business.OrderItemCount.Observe(float64(len(asm.Items)))
	}

	s.logger.InfoContext(ctx, "order placed",
		"order_id", committed.ID,
		"order_number", committed.OrderNumber,
		"payment_method", method,
		"payment_status", paymentStatus,
		"total", rec.TotalAmount.String(),
	)

	return &Placement{
		OrderID:       committed.ID,
		OrderNumber:   committed.OrderNumber,
		Status:        rec.Status,
		PaymentStatus: rec.PaymentStatus,
		PaymentID:     rec.PaymentID,
		Totals:        co.quote.Pricing,
	}, nil
}

// dispatch takes payment for a prepared checkout and returns the payment
// status and external reference to record on the order.
func (s *checkoutService) dispatch(ctx context.Context, co *checkout) (domain.PaymentStatus, string, error) {
	method := co.params.PaymentMethod
	if telemetry.Business != nil {
		telemetry.Business.PaymentAttempts.WithLabelValues(string(method)).Inc()
	}

	var (
		status    domain.PaymentStatus
		paymentID string
	)
	switch method {
	case domain.PaymentMethodCOD:
		status = domain.PaymentStatusPending
	case domain.PaymentMethodGiftCard:
		status = domain.PaymentStatusPaid
		paymentID = "GIFT-" + co.quote.GiftCard.Code
	case domain.PaymentMethodGateway:
		var err error
		paymentID, err = s.payWithGateway(ctx, co)
		if err != nil {
			return "", "", err
		}
		status = domain.PaymentStatusPaid
	default:
		return "", "", ErrInvalidPaymentMethod.WithOp("checkout.dispatch")
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentSucceeded.WithLabelValues(string(method)).Inc()
	}
	return status, paymentID, nil
}

// payWithGateway waits for the shopper to complete the session opened by
// BeginGatewayPayment.
func (s *checkoutService) payWithGateway(ctx context.Context, co *checkout) (string, error) {
	const op = "checkout.gateway_payment"

	sessionID := co.params.SessionID
	spanCtx, finish := telemetry.StartSpan(ctx, "gateway.checkout", sessionID)
	defer finish()

	start := time.Now()
	res, err := s.gateway.Checkout(spanCtx, billing.CheckoutParams{
		SessionID:    sessionID,
		AmountMinor:  billing.ToMinorUnits(co.quote.Pricing.Payable),
		Currency:     s.currency,
		PayerName:    co.params.Contact.Name,
		PayerContact: co.params.Contact.Phone,
	})
	observeGateway("checkout", start)
	if err != nil {
		return "", s.gatewayError(ctx, op, err)
	}
	if res == nil || res.ExternalPaymentID == "" {
		return "", s.gatewayError(ctx, op, errors.New("gateway returned no payment reference"))
	}

	telemetry.Breadcrumb(ctx, "checkout", "gateway payment succeeded", map[string]interface{}{
		"session_id": sessionID,
	})
	s.logger.InfoContext(ctx, "gateway payment succeeded",
		"session_id", sessionID,
		"payment_id", res.ExternalPaymentID,
	)
	return res.ExternalPaymentID, nil
}

// placedFor returns the order already committed against paymentID, or nil.
// A payment backs exactly one order, so a replayed session resolves to it.
func (s *checkoutService) placedFor(ctx context.Context, paymentID string, co *checkout) *Placement {
	if s.orders == nil {
		return nil
	}
	detail, err := s.orders.OrderByPaymentID(ctx, paymentID)
	if err != nil {
		if !domain.IsCode(err, domain.ENOTFOUND) {
			// The unique payment_id index still rejects a second order.
			s.logger.WarnContext(ctx, "failed to look up order by payment", "payment_id", paymentID, "error", err)
		}
		return nil
	}

	rec := detail.Order
	s.logger.InfoContext(ctx, "payment already backs an order",
		"payment_id", paymentID,
		"order_id", rec.ID,
		"order_number", rec.OrderNumber,
	)
	return &Placement{
		OrderID:       rec.ID,
		OrderNumber:   rec.OrderNumber,
		Status:        rec.Status,
		PaymentStatus: rec.PaymentStatus,
		PaymentID:     rec.PaymentID,
		Totals:        co.quote.Pricing,
	}
}

func (s *checkoutService) createSession(ctx context.Context, co *checkout) (*billing.Session, error) {
	meta := map[string]string{
		"line_count": strconv.Itoa(len(co.cart.Lines)),
		"item_count": strconv.Itoa(co.cart.ItemCount()),
	}
	if co.params.IdempotencyKey != "" {
		meta["checkout_key"] = co.params.IdempotencyKey
	}
	if id := order.ParseID(co.params.UserID); id != nil {
		meta["user_id"] = id.String()
	}

	var idemKey string
	if co.params.IdempotencyKey != "" {
		idemKey = "session-" + co.params.IdempotencyKey
	}

	start := time.Now()
	sess, err := s.gateway.CreateSession(ctx, billing.SessionParams{
		AmountMinor:    billing.ToMinorUnits(co.quote.Pricing.Payable),
		Currency:       s.currency,
		Metadata:       meta,
		IdempotencyKey: idemKey,
	})
	observeGateway("create_session", start)
	if err != nil {
		return nil, err
	}

	telemetry.Breadcrumb(ctx, "checkout", "gateway session created", map[string]interface{}{
		"session_id":   sess.ID,
		"amount_minor": sess.AmountMinor,
	})
	return sess, nil
}

// gatewayError maps a gateway failure to the checkout error taxonomy.
// Cancellation is kept distinct from failure, and outages offer cash on
// delivery instead of ever producing a paid order.
func (s *checkoutService) gatewayError(ctx context.Context, op string, err error) error {
	method := string(domain.PaymentMethodGateway)

	switch {
	case errors.Is(err, billing.ErrCheckoutCancelled):
		s.logger.InfoContext(ctx, "gateway payment cancelled by shopper", "op", op)
		if telemetry.Business != nil {
			telemetry.Business.PaymentCancelled.WithLabelValues(method).Inc()
		}
		return ErrPaymentCancelled.Wrap(op, err)

	case errors.Is(err, billing.ErrGatewayUnavailable):
		s.logger.WarnContext(ctx, "payment gateway unavailable, offering cash on delivery", "op", op, "error", err)
		if telemetry.Business != nil {
			telemetry.Business.PaymentFailed.WithLabelValues(method, "unavailable").Inc()
			telemetry.Business.GatewayFallbacks.Inc()
		}
		return ErrGatewayUnavailable.Wrap(op, err)
	}

	s.logger.WarnContext(ctx, "gateway payment failed", "op", op, "error", err)
	if telemetry.Business != nil {
		reason := "failed"
		var ge *billing.GatewayError
		if errors.As(err, &ge) && ge.IsDeclined() {
			reason = "declined"
		}
		telemetry.Business.PaymentFailed.WithLabelValues(method, reason).Inc()
	}
	return ErrPaymentFailed.Wrap(op, err)
}

func observeGateway(operation string, start time.Time) {
	if telemetry.Business != nil {
		telemetry.Business.GatewayLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
