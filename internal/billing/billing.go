package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is an external payment gateway driven through a session lifecycle:
// the server creates a session, the shopper completes it in the gateway's
// native checkout UI, and Checkout reports the outcome.
type Gateway interface {
	// CreateSession requests a checkout session for the payable amount.
	CreateSession(ctx context.Context, params SessionParams) (*Session, error)

	// Checkout waits for the shopper to finish the session and returns the
	// external payment reference. Cancellation returns ErrCheckoutCancelled;
	// any other unsuccessful outcome returns ErrPaymentFailed, or
	// ErrGatewayUnavailable when the gateway could not be reached.
	Checkout(ctx context.Context, params CheckoutParams) (*CheckoutResult, error)

	// CancelSession abandons a session. A Checkout waiting on it returns
	// ErrCheckoutCancelled.
	CancelSession(ctx context.Context, sessionID string) error
}

// SessionParams contains parameters for creating a checkout session.
type SessionParams struct {
	// AmountMinor is the amount in the currency's minor unit (paise for INR).
	AmountMinor int64

	// Currency code (ISO 4217, lowercase), e.g. "inr".
	Currency string

	// Metadata is attached to the session for reconciliation.
	Metadata map[string]string

	// IdempotencyKey prevents duplicate sessions for one checkout attempt.
	IdempotencyKey string
}

// Session is a gateway checkout session. ClientSecret and Key are handed to
// the client so it can open the native checkout UI.
type Session struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Key          string `json:"key"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
}

// CheckoutParams identifies the session to await and the payer details the
// gateway UI was prefilled with. The publishable key travels to the client
// on Session and is not needed to await the result.
type CheckoutParams struct {
	SessionID    string
	AmountMinor  int64
	Currency     string
	PayerName    string
	PayerContact string
}

// CheckoutResult is a successful checkout.
type CheckoutResult struct {
	ExternalPaymentID string
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts an amount to the currency's minor unit, rounding to
// the nearest unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
