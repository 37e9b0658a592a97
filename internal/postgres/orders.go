package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderStore persists orders and their items.
type OrderStore struct {
	db DBTX
}

// Compile-time checks that OrderStore satisfies both commit strategies and
// the order lookup.
var (
	_ service.OrderStore   = (*OrderStore)(nil)
	_ service.TxOrderStore = (*OrderStore)(nil)
	_ service.OrderReader  = (*OrderStore)(nil)
)

// NewOrderStore creates a new PostgreSQL-backed order store.
func NewOrderStore(db DBTX) *OrderStore {
	return &OrderStore{db: db}
}

const insertOrderSQL = `
	INSERT INTO orders (
		id, order_number, user_id, status, payment_method, payment_status, payment_id,
		total_amount, subtotal, discount_amount, shipping_amount, shipping_address,
		customer_name, customer_email, customer_phone, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

const insertItemSQL = `
	INSERT INTO order_items (
		order_id, product_id, product_name, product_image, quantity,
		unit_price, total_price, size, color
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// InsertOrder writes the order row.
func (s *OrderStore) InsertOrder(ctx context.Context, rec domain.OrderRecord) error {
	return insertOrder(ctx, s.db, rec)
}

// InsertItems writes all items in a single batch round trip.
func (s *OrderStore) InsertItems(ctx context.Context, items []domain.OrderItemRecord) error {
	return insertItems(ctx, s.db, items)
}

// DeleteOrder removes an order. Its items go with it through the foreign key cascade.
func (s *OrderStore) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return domain.Internal(err, "order.delete", "failed to delete order")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound.WithOp("order.delete")
	}
	return nil
}

// CreateOrderWithItems writes the order and its items in one transaction.
func (s *OrderStore) CreateOrderWithItems(ctx context.Context, rec domain.OrderRecord, items []domain.OrderItemRecord) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = insertOrder(ctx, tx, rec); err != nil {
		return err
	}
	if err = insertItems(ctx, tx, items); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Internal(err, "order.create", "failed to commit transaction")
	}
	return nil
}

func insertOrder(ctx context.Context, db DBTX, rec domain.OrderRecord) error {
	_, err := db.Exec(ctx, insertOrderSQL,
		rec.ID,
		rec.OrderNumber,
		pgUUID(rec.UserID),
		string(rec.Status),
		string(rec.PaymentMethod),
		string(rec.PaymentStatus),
		rec.PaymentID,
		numericFromDecimal(rec.TotalAmount),
		numericFromDecimal(rec.Subtotal),
		numericFromDecimal(rec.DiscountAmount),
		numericFromDecimal(rec.ShippingAmount),
		rec.ShippingAddress,
		rec.CustomerName,
		rec.CustomerEmail,
		rec.CustomerPhone,
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(err, domain.ECONFLICT, "order.insert", "order already exists")
		}
		return domain.Internal(err, "order.insert", "failed to insert order")
	}
	return nil
}

func insertItems(ctx context.Context, db DBTX, items []domain.OrderItemRecord) error {
	if len(items) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(insertItemSQL,
			it.OrderID,
			pgUUID(it.ProductID),
			it.ProductName,
			it.ProductImage,
			it.Quantity,
			numericFromDecimal(it.UnitPrice),
			numericFromDecimal(it.TotalPrice),
			it.Size,
			it.Color,
		)
	}

	br := db.SendBatch(ctx, b)
	for i := range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return domain.Internal(err, "order.insert_items", fmt.Sprintf("failed to insert order item %d", i))
		}
	}
	if err := br.Close(); err != nil {
		return domain.Internal(err, "order.insert_items", "failed to insert order items")
	}
	return nil
}

// OrderByPaymentID loads the order recorded against an external payment reference.
func (s *OrderStore) OrderByPaymentID(ctx context.Context, paymentID string) (*domain.OrderDetail, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM orders WHERE payment_id = $1`, paymentID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound.WithOp("order.get_by_payment")
		}
		return nil, domain.Internal(err, "order.get_by_payment", "failed to look up order by payment")
	}
	return s.GetOrder(ctx, id)
}

// GetOrder loads an order and its items.
func (s *OrderStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.OrderDetail, error) {
	const op = "order.get"

	var (
		rec                                    domain.OrderRecord
		userID                                 pgtype.UUID
		status, method, paymentStatus          string
		total, subtotal, discount, shippingAmt pgtype.Numeric
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, order_number, user_id, status, payment_method, payment_status, payment_id,
			total_amount, subtotal, discount_amount, shipping_amount, shipping_address,
			customer_name, customer_email, customer_phone, created_at
		FROM orders
		WHERE id = $1`, id,
	).Scan(
		&rec.ID,
		&rec.OrderNumber,
		&userID,
		&status,
		&method,
		&paymentStatus,
		&rec.PaymentID,
		&total,
		&subtotal,
		&discount,
		&shippingAmt,
		&rec.ShippingAddress,
		&rec.CustomerName,
		&rec.CustomerEmail,
		&rec.CustomerPhone,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound.WithOp(op)
		}
		return nil, domain.Internal(err, op, "failed to load order")
	}

	rec.UserID = uuidPtr(userID)
	rec.Status = domain.OrderStatus(status)
	rec.PaymentMethod = domain.PaymentMethod(method)
	rec.PaymentStatus = domain.PaymentStatus(paymentStatus)
	rec.TotalAmount = decimalFromNumeric(total)
	rec.Subtotal = decimalFromNumeric(subtotal)
	rec.DiscountAmount = decimalFromNumeric(discount)
	rec.ShippingAmount = decimalFromNumeric(shippingAmt)

	rows, err := s.db.Query(ctx, `
		SELECT order_id, product_id, product_name, product_image, quantity,
			unit_price, total_price, size, color
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, id,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order items")
	}
	defer rows.Close()

	items := make([]domain.OrderItemRecord, 0)
	for rows.Next() {
		var (
			it          domain.OrderItemRecord
			productID   pgtype.UUID
			unit, total pgtype.Numeric
		)
		if err := rows.Scan(
			&it.OrderID,
			&productID,
			&it.ProductName,
			&it.ProductImage,
			&it.Quantity,
			&unit,
			&total,
			&it.Size,
			&it.Color,
		); err != nil {
			return nil, domain.Internal(err, op, "failed to scan order item")
		}
		it.ProductID = uuidPtr(productID)
		it.UnitPrice = decimalFromNumeric(unit)
		it.TotalPrice = decimalFromNumeric(total)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read order items")
	}

	return &domain.OrderDetail{Order: rec, Items: items}, nil
}
