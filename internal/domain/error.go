package domain

import (
	"errors"
	"fmt"
)

// Application error codes.
// These map to HTTP status codes and determine user-facing messages.
const (
	ECONFLICT    = "conflict"         // 409
	EINTERNAL    = "internal"         // 500 - hide details
	EINVALID     = "invalid"          // 400
	ENOTFOUND    = "not_found"        // 404
	EPAYMENT     = "payment_required" // 402
	ETOOLARGE    = "too_large"        // 413
	EUNAVAILABLE = "unavailable"      // 503 - upstream gateway down
	ECANCELED    = "canceled"         // 409 - user aborted an external step
	ENOTIMPL     = "not_implemented"  // 501
)

// Checkout failure reasons. A reason is finer grained than a code: several
// reasons share the EINVALID code but need different corrective prompts.
const (
	ReasonValidation          = "validation_error"
	ReasonInvalidCoupon       = "invalid_coupon"
	ReasonInvalidGiftCard     = "invalid_gift_card"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonPaymentCancelled    = "payment_cancelled"
	ReasonPaymentFailed       = "payment_failed"
	ReasonOrderCreationFailed = "order_creation_failed"
	ReasonOrderItemsFailed    = "order_items_failed"
)

// Error represents an application error with a code and message.
type Error struct {
	// Code is a machine-readable error class (e.g., EINVALID, ENOTFOUND).
	Code string

	// Reason is the checkout failure reason, if any (e.g., ReasonInvalidCoupon).
	Reason string

	// Message is a human-readable error message safe to show to users.
	Message string

	// Op is the operation where the error occurred (e.g., "checkout.place").
	// Used for debugging and logging, not shown to users.
	Op string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a domain error with the same code and reason.
// This lets sentinel errors match copies carrying a different Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Reason == t.Reason && e.Message == t.Message
}

// WithOp returns a copy of e tagged with the given operation.
func (e *Error) WithOp(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

// Wrap returns a copy of e tagged with op and carrying err as its cause.
func (e *Error) Wrap(op string, err error) *Error {
	c := *e
	c.Op = op
	c.Err = err
	return &c
}

// ErrorCode extracts the error code from an error.
// Returns EINTERNAL for non-domain errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return EINTERNAL
}

// ErrorReason extracts the checkout failure reason from an error.
func ErrorReason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// ErrorMessage extracts a user-facing message from an error.
// For internal errors, returns a generic message to avoid leaking details.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Message
	}

	return "An internal error occurred. Please try again later."
}

// ErrorOp extracts the operation from an error (for logging).
func ErrorOp(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Errorf creates a new domain error with formatted message.
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with a domain error code and operation.
// Returns nil if err is nil.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsCode returns true if err has the given error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// IsReason returns true if err carries the given checkout reason.
func IsReason(err error, reason string) bool {
	return ErrorReason(err) == reason
}

// NotFound creates a not found error for a resource.
func NotFound(op, resource, identifier string) error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// Invalid creates a validation error for a single issue.
func Invalid(op, message string) error {
	return &Error{
		Code:    EINVALID,
		Reason:  ReasonValidation,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error (wraps underlying error).
// The message shown to users will be generic; the underlying error is for logging.
func Internal(err error, op, message string) error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Validation Errors (field-level errors for request payloads)
// =============================================================================

// ValidationError represents one or more field validation failures.
type ValidationError struct {
	// Fields maps field names to error messages.
	Fields map[string]string

	// Op is the operation where validation failed.
	Op string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			if e.Op != "" {
				return fmt.Sprintf("%s: %s: %s", e.Op, field, msg)
			}
			return fmt.Sprintf("%s: %s", field, msg)
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: validation failed for %d fields", e.Op, len(e.Fields))
	}
	return fmt.Sprintf("validation failed for %d fields", len(e.Fields))
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(op, field, message string) error {
	return &ValidationError{
		Op:     op,
		Fields: map[string]string{field: message},
	}
}

// AddFieldError adds a field error to an existing ValidationError.
// If err is not a ValidationError, creates a new one with the field.
func AddFieldError(err error, field, message string) error {
	var ve *ValidationError
	if err != nil && errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}

	return &ValidationError{
		Fields: map[string]string{field: message},
	}
}

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationFields extracts field errors from a ValidationError.
func GetValidationFields(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
