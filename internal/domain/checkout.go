package domain

import "strings"

// Address is a delivery address snapshot. Orders store a copy, not a reference.
type Address struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

// IsZero reports whether the address carries no usable delivery line.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.AddressLine1) == "" && strings.TrimSpace(a.City) == ""
}

// Contact holds the customer's contact details on file.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// HasGatewayDetails reports whether name and phone are present, which the
// external gateway requires to prefill its checkout sheet.
func (c Contact) HasGatewayDetails() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Phone) != ""
}
