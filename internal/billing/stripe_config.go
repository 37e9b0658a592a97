package billing

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// StripeConfig contains configuration for the Stripe gateway.
type StripeConfig struct {
	// SecretKey is the Stripe secret key (sk_test_... or sk_live_...)
	SecretKey string

	// PublishableKey is handed to clients to open the payment sheet (pk_...)
	PublishableKey string

	// Currency for sessions, e.g. "inr"
	Currency string

	// PollInterval is how often Checkout re-reads the payment intent.
	// Default: 1s
	PollInterval time.Duration

	// CheckoutTimeout bounds how long Checkout waits for the shopper.
	// Default: 5m
	CheckoutTimeout time.Duration

	// HTTPClient is optional; when set, Stripe API calls go through it.
	HTTPClient *http.Client
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return ErrInvalidAPIKey
	}
	if c.PublishableKey == "" {
		return errors.New("stripe: publishable key is required")
	}
	if c.Currency == "" {
		return errors.New("stripe: currency is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.SecretKey, "sk_test_")
}

func (c StripeConfig) withDefaults() StripeConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.CheckoutTimeout <= 0 {
		c.CheckoutTimeout = 5 * time.Minute
	}
	c.Currency = strings.ToLower(c.Currency)
	return c
}
