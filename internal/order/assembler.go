// Package order turns a priced cart into persistence-ready order records.
package order

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidIdentity is returned in strict mode when the shopper's identity
// is not a valid identifier.
var ErrInvalidIdentity = &domain.Error{
	Code:    domain.EINVALID,
	Reason:  domain.ReasonValidation,
	Message: "Your session is invalid, please log in again",
}

// AssembleParams holds everything the assembler needs to build an order.
type AssembleParams struct {
	UserID        string
	Lines         []domain.CartLine
	Pricing       pricing.Snapshot
	PaymentMethod domain.PaymentMethod
	PaymentStatus domain.PaymentStatus
	PaymentID     string // empty when no external reference exists
	Address       domain.Address
	Contact       domain.Contact
}

// Assembly is an order and its items, ready to commit.
type Assembly struct {
	Order domain.OrderRecord
	Items []domain.OrderItemRecord
}

// Assembler builds order records. It has no side effects.
type Assembler struct {
	strict    bool
	logger    *slog.Logger
	now       func() time.Time
	newNumber func(time.Time) (string, error)
}

// NewAssembler creates an assembler. When strict is false an invalid user
// identity produces an ownerless order; when true it is rejected.
func NewAssembler(strict bool, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		strict:    strict,
		logger:    logger,
		now:       time.Now,
		newNumber: NewNumber,
	}
}

// Assemble builds the order and item records for p.
func (a *Assembler) Assemble(p AssembleParams) (*Assembly, error) {
	const op = "order.assemble"

	if len(p.Lines) == 0 {
		return nil, domain.ErrEmptyCart.WithOp(op)
	}
	if !p.PaymentMethod.Valid() {
		return nil, domain.Invalid(op, "Unknown payment method")
	}
	if p.PaymentStatus == domain.PaymentStatusPaid && strings.TrimSpace(p.PaymentID) == "" {
		return nil, domain.Invalid(op, "A paid order requires a payment reference")
	}

	userID := ParseID(p.UserID)
	if userID == nil && p.UserID != "" {
		if a.strict {
			return nil, ErrInvalidIdentity.WithOp(op)
		}
		a.logger.Warn("order assembled without owner", "op", op, "reason", "invalid user id")
	}

	createdAt := a.now().UTC()
	number, err := a.newNumber(createdAt)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to generate order number")
	}

	var paymentID *string
	if p.PaymentID != "" {
		id := p.PaymentID
		paymentID = &id
	}

	rec := domain.OrderRecord{
		ID:              uuid.New(),
		OrderNumber:     number,
		UserID:          userID,
		Status:          domain.StatusFor(p.PaymentStatus),
		PaymentMethod:   p.PaymentMethod,
		PaymentStatus:   p.PaymentStatus,
		PaymentID:       paymentID,
		TotalAmount:     p.Pricing.Payable,
		Subtotal:        p.Pricing.Subtotal,
		DiscountAmount:  p.Pricing.Discount(),
		ShippingAmount:  p.Pricing.DeliveryCharge,
		ShippingAddress: p.Address,
		CustomerName:    p.Contact.Name,
		CustomerEmail:   p.Contact.Email,
		CustomerPhone:   p.Contact.Phone,
		CreatedAt:       createdAt,
	}

	items := make([]domain.OrderItemRecord, 0, len(p.Lines))
	for _, l := range p.Lines {
		items = append(items, domain.OrderItemRecord{
			OrderID:      rec.ID,
			ProductID:    ParseID(l.ProductID),
			ProductName:  l.Name,
			ProductImage: l.ImageRef,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			TotalPrice:   l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			Size:         l.Size,
			Color:        l.Color,
		})
	}

	return &Assembly{Order: rec, Items: items}, nil
}
