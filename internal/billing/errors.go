package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckoutCancelled is returned when the shopper abandons the gateway UI.
	ErrCheckoutCancelled = errors.New("billing: checkout cancelled")

	// ErrPaymentFailed is returned when the gateway reports an unsuccessful payment.
	ErrPaymentFailed = errors.New("billing: payment failed")

	// ErrGatewayUnavailable is returned when the gateway cannot be reached or
	// is refusing requests. Callers should offer an offline payment method.
	ErrGatewayUnavailable = errors.New("billing: gateway unavailable")

	// ErrAmountMismatch is returned when a session's amount differs from the
	// amount being charged.
	ErrAmountMismatch = errors.New("billing: session amount does not match payable")

	// ErrInvalidAPIKey is returned when the gateway secret key is missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")
)

// GatewayError wraps a gateway API error with additional context.
type GatewayError struct {
	Message       string // Human-readable error message
	Code          string // Gateway error code (e.g., "card_declined")
	DeclineCode   string // Card decline reason (if applicable)
	HTTPStatus    int    // HTTP status returned by the gateway
	RequestID     string // Gateway request ID for debugging
	OriginalError error  // Original error from the SDK
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("gateway: %s", e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.OriginalError
}

// IsDeclined returns true if error is due to card decline.
func (e *GatewayError) IsDeclined() bool {
	return e.Code == "card_declined" || e.DeclineCode != ""
}

// IsTemporary returns true if error is likely transient and retryable.
func (e *GatewayError) IsTemporary() bool {
	return e.HTTPStatus == 429 || e.HTTPStatus >= 500
}
