package service

import (
	"errors"

	"github.com/dukerupert/atelier/internal/domain"
)

// Checkout precondition errors - use domain.EINVALID
var (
	ErrAddressRequired = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonValidation,
		Message: "A delivery address is required",
	}
	ErrInvalidAddress = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonValidation,
		Message: "The delivery address is incomplete",
	}
	ErrSessionRequired = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonValidation,
		Message: "Start online payment before placing the order",
	}
	ErrContactRequired = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonValidation,
		Message: "Name and phone number are required for online payment",
	}
	ErrInvalidPaymentMethod = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonValidation,
		Message: "Unknown payment method",
	}
	ErrNothingToPay = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonValidation,
		Message: "Your promotions cover the whole order; choose gift card payment",
	}
	ErrGiftCardRequired = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonValidation,
		Message: "Apply a gift card to pay with gift card",
	}
	ErrInsufficientBalance = &domain.Error{
		Code: domain.EINVALID, Reason: domain.ReasonInsufficientBalance,
		Message: "Gift card balance does not cover the order total",
	}
)

// Payment errors
var (
	ErrPaymentCancelled = &domain.Error{
		Code: domain.ECANCELED, Reason: domain.ReasonPaymentCancelled,
		Message: "Payment was cancelled",
	}
	ErrPaymentFailed = &domain.Error{
		Code: domain.EPAYMENT, Reason: domain.ReasonPaymentFailed,
		Message: "Payment failed. Please try again.",
	}
	ErrGatewayUnavailable = &domain.Error{
		Code: domain.EUNAVAILABLE, Reason: domain.ReasonPaymentFailed,
		Message: "Online payment is unavailable right now. You can pay cash on delivery instead.",
	}
)

// Commit errors - details are hidden from shoppers
var (
	ErrOrderCreationFailed = &domain.Error{
		Code: domain.EINTERNAL, Reason: domain.ReasonOrderCreationFailed,
		Message: "Failed to create order",
	}
	ErrOrderItemsFailed = &domain.Error{
		Code: domain.EINTERNAL, Reason: domain.ReasonOrderItemsFailed,
		Message: "Failed to save order items",
	}
)

// ErrOrderNotFound is returned when an order lookup misses.
var ErrOrderNotFound = domain.ErrOrderNotFound

// FallbackMethod reports the payment method a shopper can switch to after err.
// Only gateway outages offer one: cash on delivery.
func FallbackMethod(err error) (domain.PaymentMethod, bool) {
	if errors.Is(err, ErrGatewayUnavailable) {
		return domain.PaymentMethodCOD, true
	}
	return "", false
}
