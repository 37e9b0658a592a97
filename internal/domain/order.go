package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is derived from the payment outcome at creation time.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// PaymentMethod selects the dispatch path for an order.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "cod"
	PaymentMethodGiftCard PaymentMethod = "giftcard"
	PaymentMethodGateway  PaymentMethod = "gateway"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodGiftCard, PaymentMethodGateway:
		return true
	}
	return false
}

// PaymentStatus is the payment state recorded on an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// StatusFor maps a payment status to the order status: paid orders are
// confirmed, everything else is pending.
func StatusFor(ps PaymentStatus) OrderStatus {
	if ps == PaymentStatusPaid {
		return OrderStatusConfirmed
	}
	return OrderStatusPending
}

// Order-related domain errors.
var (
	ErrOrderNotFound = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrEmptyCart     = &Error{Code: EINVALID, Reason: ReasonValidation, Message: "Cart is empty"}
)

// OrderRecord is the persistence-ready order row.
type OrderRecord struct {
	ID              uuid.UUID
	OrderNumber     string
	UserID          *uuid.UUID // nil for guest or unresolved identity
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	PaymentID       *string
	TotalAmount     decimal.Decimal
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	ShippingAmount  decimal.Decimal
	ShippingAddress Address // denormalised snapshot
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CreatedAt       time.Time
}

// OrderItemRecord is one persisted order line. Items are written once,
// immediately after their order, and only ever deleted with it.
type OrderItemRecord struct {
	OrderID      uuid.UUID
	ProductID    *uuid.UUID // nil when the cart line id was not a valid identifier
	ProductName  string
	ProductImage string
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	Size         string
	Color        string
}

// OrderDetail is an order together with its items.
type OrderDetail struct {
	Order OrderRecord
	Items []OrderItemRecord
}
