package order

import (
	"crypto/rand"
	"fmt"
	"time"
)

// numberAlphabet omits 0/O and 1/I so numbers read back over the phone.
const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewNumber returns a human-facing order number of the form
// ORD-YYYYMMDD-XXXXXX for the given creation time.
func NewNumber(at time.Time) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	for i := range b {
		b[i] = numberAlphabet[int(b[i])%len(numberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), b), nil
}
