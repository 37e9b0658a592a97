package postgres

import (
	"context"
	"errors"

	"github.com/dukerupert/atelier/internal/domain"
	"github.com/dukerupert/atelier/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AddressBook reads saved delivery addresses.
type AddressBook struct {
	db DBTX
}

var _ service.AddressBook = (*AddressBook)(nil)

// NewAddressBook creates a new PostgreSQL-backed address book.
func NewAddressBook(db DBTX) *AddressBook {
	return &AddressBook{db: db}
}

// DefaultAddress returns the user's default address, or nil when none is saved.
func (b *AddressBook) DefaultAddress(ctx context.Context, userID uuid.UUID) (*domain.Address, error) {
	var a domain.Address
	err := b.db.QueryRow(ctx, `
		SELECT full_name, address_line1, address_line2, city, state, postal_code, country, phone
		FROM addresses
		WHERE user_id = $1 AND is_default
		LIMIT 1`, userID,
	).Scan(
		&a.FullName,
		&a.AddressLine1,
		&a.AddressLine2,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Internal(err, "address.default", "failed to load default address")
	}
	return &a, nil
}

// SaveDefaultAddress stores addr as the user's default, demoting any previous one.
func (b *AddressBook) SaveDefaultAddress(ctx context.Context, userID uuid.UUID, addr domain.Address) (err error) {
	const op = "address.save_default"

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`, userID); err != nil {
		return domain.Internal(err, op, "failed to clear default address")
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO addresses (user_id, full_name, address_line1, address_line2, city, state, postal_code, country, phone, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)`,
		userID, addr.FullName, addr.AddressLine1, addr.AddressLine2, addr.City, addr.State, addr.PostalCode, addr.Country, addr.Phone,
	); err != nil {
		return domain.Internal(err, op, "failed to save address")
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit transaction")
	}
	return nil
}
