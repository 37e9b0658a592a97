package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/order"
	"github.com/dukerupert/atelier/internal/telemetry"
	"github.com/google/uuid"
)

// compensationTimeout bounds the rollback delete. It runs detached from the
// request context so a disconnected client cannot leave an order without items.
const compensationTimeout = 10 * time.Second

// OrderStore persists orders one statement at a time.
type OrderStore interface {
	InsertOrder(ctx context.Context, rec domain.OrderRecord) error
	InsertItems(ctx context.Context, items []domain.OrderItemRecord) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

// TxOrderStore persists an order and its items in a single transaction.
type TxOrderStore interface {
	CreateOrderWithItems(ctx context.Context, rec domain.OrderRecord, items []domain.OrderItemRecord) error
}

// Committed identifies a persisted order.
type Committed struct {
	ID          uuid.UUID
	OrderNumber string
}

// Committer persists an assembled order.
type Committer interface {
	Commit(ctx context.Context, asm *order.Assembly) (*Committed, error)
}

// CompensatingCommitter inserts the order, then its items in one batch, and
// deletes the order again if the items fail. It is for stores that cannot
// run both inserts in one transaction.
type CompensatingCommitter struct {
	store  OrderStore
	logger *slog.Logger
}

// NewCompensatingCommitter creates a committer over store.
func NewCompensatingCommitter(store OrderStore, logger *slog.Logger) *CompensatingCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompensatingCommitter{store: store, logger: logger}
}

// Commit implements Committer.
func (c *CompensatingCommitter) Commit(ctx context.Context, asm *order.Assembly) (*Committed, error) {
	const op = "order.commit"

	rec := asm.Order
	if err := c.store.InsertOrder(ctx, rec); err != nil {
		c.logger.ErrorContext(ctx, "failed to insert order",
			"order_id", rec.ID,
			"order_number", rec.OrderNumber,
			"error", err,
		)
		recordCommitFailure(domain.ReasonOrderCreationFailed)
		return nil, ErrOrderCreationFailed.Wrap(op, err)
	}

	if err := c.store.InsertItems(ctx, asm.Items); err != nil {
		recordCommitFailure(domain.ReasonOrderItemsFailed)
		return nil, ErrOrderItemsFailed.Wrap(op, c.compensate(ctx, rec, err))
	}

	return &Committed{ID: rec.ID, OrderNumber: rec.OrderNumber}, nil
}

// compensate deletes an order whose items failed to persist and returns the
// error to report: itemsErr alone, or joined with the delete failure.
func (c *CompensatingCommitter) compensate(ctx context.Context, rec domain.OrderRecord, itemsErr error) error {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	delErr := c.store.DeleteOrder(delCtx, rec.ID)
	if delErr == nil {
		c.logger.WarnContext(ctx, "order rolled back after item insert failure",
			"order_id", rec.ID,
			"order_number", rec.OrderNumber,
			"error", itemsErr,
		)
		if telemetry.Business != nil {
			telemetry.Business.Compensations.WithLabelValues("deleted").Inc()
		}
		return itemsErr
	}

	// The order is now visible without items and needs manual cleanup.
	c.logger.ErrorContext(ctx, "failed to roll back order after item insert failure",
		"order_id", rec.ID,
		"order_number", rec.OrderNumber,
		"items_error", itemsErr,
		"delete_error", delErr,
	)
	telemetry.CaptureErrorFromContext(ctx, delErr, map[string]interface{}{
		"order_id":     rec.ID.String(),
		"order_number": rec.OrderNumber,
		"items_error":  itemsErr.Error(),
	})
	if telemetry.Business != nil {
		telemetry.Business.Compensations.WithLabelValues("failed").Inc()
	}
	return errors.Join(itemsErr, fmt.Errorf("compensating delete: %w", delErr))
}

// TransactionalCommitter writes the order and its items atomically.
type TransactionalCommitter struct {
	store  TxOrderStore
	logger *slog.Logger
}

// NewTransactionalCommitter creates a committer over store.
func NewTransactionalCommitter(store TxOrderStore, logger *slog.Logger) *TransactionalCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionalCommitter{store: store, logger: logger}
}

// Commit implements Committer.
func (c *TransactionalCommitter) Commit(ctx context.Context, asm *order.Assembly) (*Committed, error) {
	const op = "order.commit"

	rec := asm.Order
	if err := c.store.CreateOrderWithItems(ctx, rec, asm.Items); err != nil {
		c.logger.ErrorContext(ctx, "failed to create order",
			"order_id", rec.ID,
			"order_number", rec.OrderNumber,
			"error", err,
		)
		recordCommitFailure(domain.ReasonOrderCreationFailed)
		return nil, ErrOrderCreationFailed.Wrap(op, err)
	}

	return &Committed{ID: rec.ID, OrderNumber: rec.OrderNumber}, nil
}

func recordCommitFailure(reason string) {
	if telemetry.Business != nil {
		telemetry.Business.CommitFailures.WithLabelValues(reason).Inc()
	}
}
