package domain

import (
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = &Error{Code: EINVALID, Reason: ReasonValidation, Message: "Quantity must be greater than 0"}
	ErrNegativePrice   = &Error{Code: EINVALID, Reason: ReasonValidation, Message: "Unit price must not be negative"}
)

// MoneyPlaces is the number of decimal places every stored amount carries.
const MoneyPlaces = 2

// CartLine is one product/variant selection in a shopper's cart.
//
// ProductID may come from an external catalogue and is not guaranteed to be
// a persisted identifier; the order assembler decides what to keep.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	ImageRef  string          `json:"image_ref,omitempty"`
}

// LineTotal returns unit price × quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// sameVariant reports whether two lines describe the same product variant at
// the same price. Lines without a product id never merge.
func (l CartLine) sameVariant(o CartLine) bool {
	return l.ProductID != "" &&
		l.ProductID == o.ProductID &&
		l.Size == o.Size &&
		l.Color == o.Color &&
		l.UnitPrice.Equal(o.UnitPrice)
}

// Cart is the session-scoped cart. It is owned by a single checkout session
// and is not safe for concurrent use.
type Cart struct {
	Lines []CartLine
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{}
}

// CartFromLines normalizes lines and adds them to a new cart, so a variant
// submitted twice becomes one line.
func CartFromLines(lines []CartLine) (*Cart, error) {
	c := NewCart()
	for _, l := range NormalizeLines(lines) {
		if err := c.Add(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends a line, merging quantities when the same variant is present.
func (c *Cart) Add(line CartLine) error {
	if line.Quantity < 1 {
		return ErrInvalidQuantity.WithOp("cart.add")
	}
	if line.UnitPrice.IsNegative() {
		return ErrNegativePrice.WithOp("cart.add")
	}

	for i := range c.Lines {
		if c.Lines[i].sameVariant(line) {
			c.Lines[i].Quantity += line.Quantity
			return nil
		}
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount returns the total number of units across all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// NormalizeLines coerces malformed lines into valid pricing input: a negative
// price becomes 0, prices are rounded to MoneyPlaces and a quantity below 1
// becomes 1. The input is not modified.
func NormalizeLines(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	for i, l := range lines {
		if l.UnitPrice.IsNegative() {
			l.UnitPrice = decimal.Zero
		}
		l.UnitPrice = l.UnitPrice.Round(MoneyPlaces)
		if l.Quantity < 1 {
			l.Quantity = 1
		}
		out[i] = l
	}
	return out
}
