package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// intentAPI is the subset of the Stripe PaymentIntent client the gateway uses.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeGateway implements Gateway on Stripe PaymentIntents. A session is a
// PaymentIntent; the client confirms it with the payment sheet and Checkout
// polls the intent until it settles.
type StripeGateway struct {
	cfg     StripeConfig
	intents intentAPI
	logger  *slog.Logger
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(cfg StripeConfig, logger *slog.Logger) (*StripeGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	backend := stripe.GetBackend(stripe.APIBackend)
	if cfg.HTTPClient != nil {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient: cfg.HTTPClient,
		})
	}

	return &StripeGateway{
		cfg:     cfg.withDefaults(),
		intents: &paymentintent.Client{B: backend, Key: cfg.SecretKey},
		logger:  logger,
	}, nil
}

// CreateSession creates a PaymentIntent for the payable amount.
func (g *StripeGateway) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	if p.AmountMinor <= 0 {
		return nil, &GatewayError{Message: "amount must be positive", Code: "amount_too_small"}
	}
	currency := p.Currency
	if currency == "" {
		currency = g.cfg.Currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	g.logger.InfoContext(ctx, "payment intent created",
		"payment_intent_id", pi.ID,
		"amount_minor", pi.Amount,
		"currency", currency,
	)

	return &Session{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Key:          g.cfg.PublishableKey,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// abandonTimeout bounds the cancel issued after the wait ends. It runs
// detached from the caller so a disconnect still closes the intent.
const abandonTimeout = 10 * time.Second

// Checkout polls the PaymentIntent until it succeeds, is cancelled, records a
// failed attempt, or CheckoutTimeout elapses. An intent left open when the
// wait ends is cancelled so it cannot be confirmed for an order that will
// never be created.
func (g *StripeGateway) Checkout(ctx context.Context, p CheckoutParams) (*CheckoutResult, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrPaymentFailed)
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.CheckoutTimeout)
	defer cancel()

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		params := &stripe.PaymentIntentParams{}
		params.Context = waitCtx

		pi, err := g.intents.Get(p.SessionID, params)
		if err != nil {
			if waitCtx.Err() != nil {
				return g.abandon(ctx, p, waitCtx.Err())
			}
			return nil, wrapStripeError(err)
		}

		if res, done, err := settle(pi, p); done {
			if err != nil {
				g.logger.WarnContext(ctx, "payment intent did not succeed",
					"payment_intent_id", pi.ID,
					"status", pi.Status,
					"error", err,
				)
			}
			return res, err
		}

		select {
		case <-waitCtx.Done():
			return g.abandon(ctx, p, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// abandon cancels an intent the shopper did not finish in time. Stripe
// refuses to cancel an intent that succeeded meanwhile; that payment stands
// and is returned as a success.
func (g *StripeGateway) abandon(ctx context.Context, p CheckoutParams, cause error) (*CheckoutResult, error) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()

	cancelErr := g.CancelSession(bg, p.SessionID)
	if cancelErr == nil {
		g.logger.WarnContext(ctx, "payment intent cancelled after checkout wait ended",
			"payment_intent_id", p.SessionID,
			"cause", cause,
		)
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, cause)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = bg
	if pi, err := g.intents.Get(p.SessionID, params); err == nil {
		if res, done, err := settle(pi, p); done && err == nil {
			g.logger.InfoContext(ctx, "payment intent succeeded as checkout wait ended",
				"payment_intent_id", pi.ID,
			)
			return res, nil
		}
	}

	g.logger.ErrorContext(ctx, "failed to cancel payment intent after checkout wait ended",
		"payment_intent_id", p.SessionID,
		"cause", cause,
		"error", cancelErr,
	)
	// The cancel error stays out of the chain: an open intent must not read
	// as an outage that invites another payment method.
	return nil, fmt.Errorf("%w: %w (cancel failed: %v)", ErrPaymentFailed, cause, cancelErr)
}

// CancelSession cancels the PaymentIntent.
func (g *StripeGateway) CancelSession(ctx context.Context, sessionID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	if _, err := g.intents.Cancel(sessionID, params); err != nil {
		return wrapStripeError(err)
	}
	return nil
}

// settle maps a PaymentIntent to a terminal checkout outcome. The bool is false
// while the shopper is still working through the payment sheet.
func settle(pi *stripe.PaymentIntent, p CheckoutParams) (*CheckoutResult, bool, error) {
	if p.AmountMinor > 0 && pi.Amount != p.AmountMinor {
		return nil, true, fmt.Errorf("%w: %w", ErrPaymentFailed, ErrAmountMismatch)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &CheckoutResult{ExternalPaymentID: pi.ID}, true, nil
	case stripe.PaymentIntentStatusCanceled:
		return nil, true, ErrCheckoutCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return nil, true, fmt.Errorf("%w: %w", ErrPaymentFailed, toGatewayError(pi.LastPaymentError))
		}
	}
	return nil, false, nil
}

func toGatewayError(se *stripe.Error) *GatewayError {
	return &GatewayError{
		Message:       se.Msg,
		Code:          string(se.Code),
		DeclineCode:   string(se.DeclineCode),
		HTTPStatus:    se.HTTPStatusCode,
		RequestID:     se.RequestID,
		OriginalError: se,
	}
}

// wrapStripeError classifies an SDK error. Transport failures, rate limiting
// and Stripe 5xx responses become ErrGatewayUnavailable; card errors become
// ErrPaymentFailed.
func wrapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	ge := toGatewayError(se)
	switch {
	case ge.IsTemporary():
		return fmt.Errorf("%w: %w", ErrGatewayUnavailable, ge)
	case se.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("%w: %w", ErrPaymentFailed, ge)
	}
	return ge
}
