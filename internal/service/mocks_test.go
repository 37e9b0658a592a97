package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryOrderStore implements OrderStore, TxOrderStore and OrderReader in memory.
type memoryOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.OrderRecord
	items  map[uuid.UUID][]domain.OrderItemRecord

	insertOrderErr error
	insertItemsErr error
	deleteErr      error

	calls []string
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{
		orders: make(map[uuid.UUID]domain.OrderRecord),
		items:  make(map[uuid.UUID][]domain.OrderItemRecord),
	}
}

func (m *memoryOrderStore) InsertOrder(ctx context.Context, rec domain.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "InsertOrder")
	if m.insertOrderErr != nil {
		return m.insertOrderErr
	}
	if err := m.checkPaymentID(rec); err != nil {
		return err
	}
	m.orders[rec.ID] = rec
	return nil
}

// checkPaymentID mirrors the unique index on orders.payment_id.
func (m *memoryOrderStore) checkPaymentID(rec domain.OrderRecord) error {
	if rec.PaymentID == nil {
		return nil
	}
	for _, o := range m.orders {
		if o.PaymentID != nil && *o.PaymentID == *rec.PaymentID {
			return domain.WrapError(errors.New("duplicate payment_id"), domain.ECONFLICT, "memory.insert_order", "order already exists")
		}
	}
	return nil
}

func (m *memoryOrderStore) InsertItems(ctx context.Context, items []domain.OrderItemRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "InsertItems")
	if m.insertItemsErr != nil {
		return m.insertItemsErr
	}
	for _, it := range items {
		m.items[it.OrderID] = append(m.items[it.OrderID], it)
	}
	return nil
}

func (m *memoryOrderStore) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "DeleteOrder")
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.orders, id)
	delete(m.items, id)
	return nil
}

func (m *memoryOrderStore) CreateOrderWithItems(ctx context.Context, rec domain.OrderRecord, items []domain.OrderItemRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "CreateOrderWithItems")
	if m.insertOrderErr != nil {
		return m.insertOrderErr
	}
	if m.insertItemsErr != nil {
		return m.insertItemsErr
	}
	if err := m.checkPaymentID(rec); err != nil {
		return err
	}
	m.orders[rec.ID] = rec
	m.items[rec.ID] = append([]domain.OrderItemRecord(nil), items...)
	return nil
}

func (m *memoryOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.OrderDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound.WithOp("memory.get_order")
	}
	return &domain.OrderDetail{Order: rec, Items: m.items[id]}, nil
}

func (m *memoryOrderStore) OrderByPaymentID(ctx context.Context, paymentID string) (*domain.OrderDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.orders {
		if rec.PaymentID != nil && *rec.PaymentID == paymentID {
			return &domain.OrderDetail{Order: rec, Items: m.items[id]}, nil
		}
	}
	return nil, domain.ErrOrderNotFound.WithOp("memory.order_by_payment")
}

func (m *memoryOrderStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// racingReader misses the first payment lookup, as if another request
// committed the same payment just after it.
type racingReader struct {
	*memoryOrderStore
	lookups int
}

func (r *racingReader) OrderByPaymentID(ctx context.Context, paymentID string) (*domain.OrderDetail, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, domain.ErrOrderNotFound.WithOp("memory.order_by_payment")
	}
	return r.memoryOrderStore.OrderByPaymentID(ctx, paymentID)
}

// mockAddressBook implements AddressBook for testing
type mockAddressBook struct {
	addresses map[uuid.UUID]domain.Address
	err       error
	calls     int
}

func (m *mockAddressBook) DefaultAddress(ctx context.Context, userID uuid.UUID) (*domain.Address, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	addr, ok := m.addresses[userID]
	if !ok {
		return nil, nil
	}
	return &addr, nil
}
