package order

import (
	"regexp"

	"github.com/google/uuid"
)

// canonicalID matches the hyphenated 8-4-4-4-12 form only. uuid.Parse also
// accepts braces, urn: prefixes and the unhyphenated form, which upstream
// callers never produce for real records.
var canonicalID = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidID reports whether s is a canonical identifier. Placeholder values such
// as "null", "undefined" or "guest" and the all-zero id are not.
func ValidID(s string) bool {
	if !canonicalID.MatchString(s) {
		return false
	}
	return uuid.MustParse(s) != uuid.Nil
}

// ParseID returns the identifier in s, or nil when s is not a valid id.
func ParseID(s string) *uuid.UUID {
	if !ValidID(s) {
		return nil
	}
	id := uuid.MustParse(s)
	return &id
}
