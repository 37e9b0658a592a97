package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/go-playground/validator/v10"
)

type rule struct {
	field string
	value func(a domain.Address) string
	tag   string
}

var rules = []rule{
	{"full_name", func(a domain.Address) string { return a.FullName }, "max=200"},
	{"address_line1", func(a domain.Address) string { return a.AddressLine1 }, "required,max=200"},
	{"address_line2", func(a domain.Address) string { return a.AddressLine2 }, "max=200"},
	{"city", func(a domain.Address) string { return a.City }, "required,max=100"},
	{"state", func(a domain.Address) string { return a.State }, "max=100"},
	{"postal_code", func(a domain.Address) string { return a.PostalCode }, "required,min=3,max=10,printascii"},
	{"country", func(a domain.Address) string { return a.Country }, "omitempty,len=2,alpha"},
	{"phone", func(a domain.Address) string { return a.Phone }, "omitempty,max=20"},
}

// BasicValidator performs format validation without external API calls.
type BasicValidator struct {
	validate *validator.Validate
}

// NewBasicValidator creates a new basic address validator.
func NewBasicValidator() *BasicValidator {
	return &BasicValidator{validate: validator.New()}
}

// Validate trims every field, upper-cases country and postal code, then
// checks required fields and lengths.
func (v *BasicValidator) Validate(ctx context.Context, addr domain.Address) (*ValidationResult, error) {
	norm := normalize(addr)
	result := &ValidationResult{NormalizedAddress: norm}

	for _, r := range rules {
		err := v.validate.VarCtx(ctx, r.value(norm), r.tag)
		if err == nil {
			continue
		}
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("validating %s: %w", r.field, err)
		}
		result.Errors = append(result.Errors, ValidationError{Field: r.field, Message: message(verrs[0])})
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

func normalize(a domain.Address) domain.Address {
	return domain.Address{
		FullName:     strings.TrimSpace(a.FullName),
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		AddressLine2: strings.TrimSpace(a.AddressLine2),
		City:         strings.TrimSpace(a.City),
		State:        strings.TrimSpace(a.State),
		PostalCode:   strings.ToUpper(strings.TrimSpace(a.PostalCode)),
		Country:      strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:        strings.TrimSpace(a.Phone),
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	default:
		return "is not valid"
	}
}
