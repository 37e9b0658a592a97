package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockGateway is a mock payment gateway for testing.
// Simulates successful checkouts without calling a real gateway.
type MockGateway struct {
	// CreateSessionFunc allows customizing session creation behavior
	CreateSessionFunc func(ctx context.Context, params SessionParams) (*Session, error)

	// CheckoutFunc allows customizing checkout behavior
	CheckoutFunc func(ctx context.Context, params CheckoutParams) (*CheckoutResult, error)

	// CancelSessionFunc allows customizing cancellation behavior
	CancelSessionFunc func(ctx context.Context, sessionID string) error

	// Sessions stores created sessions for retrieval
	Sessions map[string]*Session

	// Cancelled records sessions cancelled through CancelSession
	Cancelled map[string]bool

	// CallLog tracks method calls for test assertions
	CallLog []string

	mu sync.Mutex
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Sessions:  make(map[string]*Session),
		Cancelled: make(map[string]bool),
		CallLog:   []string{},
	}
}

func (m *MockGateway) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, call)
}

// Calls returns a copy of the call log.
func (m *MockGateway) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// CreateSession creates a mock session.
func (m *MockGateway) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	m.record(fmt.Sprintf("CreateSession(%d, %s)", params.AmountMinor, params.Currency))

	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, params)
	}

	// Default mock behavior: create an open session
	s := &Session{
		ID:           "sess_" + uuid.New().String()[:8],
		ClientSecret: "secret_" + uuid.New().String(),
		Key:          "pk_test_mock",
		AmountMinor:  params.AmountMinor,
		Currency:     params.Currency,
	}

	m.mu.Lock()
	m.Sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Checkout completes a mock checkout.
func (m *MockGateway) Checkout(ctx context.Context, params CheckoutParams) (*CheckoutResult, error) {
	m.record(fmt.Sprintf("Checkout(%s, %d)", params.SessionID, params.AmountMinor))

	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, params)
	}

	// Default mock behavior: succeed unless the session was cancelled
	m.mu.Lock()
	cancelled := m.Cancelled[params.SessionID]
	m.mu.Unlock()
	if cancelled {
		return nil, ErrCheckoutCancelled
	}
	return &CheckoutResult{ExternalPaymentID: "pay_" + params.SessionID}, nil
}

// CancelSession cancels a mock session.
func (m *MockGateway) CancelSession(ctx context.Context, sessionID string) error {
	m.record(fmt.Sprintf("CancelSession(%s)", sessionID))

	if m.CancelSessionFunc != nil {
		return m.CancelSessionFunc(ctx, sessionID)
	}

	m.mu.Lock()
	m.Cancelled[sessionID] = true
	m.mu.Unlock()
	return nil
}
