package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RentalRepo implements ports.RentalRepository.
type RentalRepo struct {
	pool Pool
}

// NewRentalRepo creates a new RentalRepo.
func NewRentalRepo(pool Pool) *RentalRepo {
	return &RentalRepo{pool: pool}
}

// Create inserts a rental inside the caller's transaction. The partial
// unique index idx_rentals_one_active is the backstop for concurrent
// completions whose transactions share no row lock; its violation maps to
// ports.ErrDuplicateActiveRental.
func (r *RentalRepo) Create(ctx context.Context, tx pgx.Tx, rental *domain.Rental) error {
	query := `INSERT INTO rentals (id, user_id, content_id, content_type, price_paid, payment_id, expires_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		rental.ID, rental.UserID, rental.ContentID, rental.ContentType,
		rental.PricePaid, rental.PaymentID, rental.ExpiresAt, rental.Status, rental.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ports.ErrDuplicateActiveRental
		}
		return fmt.Errorf("insert rental: %w", err)
	}
	return nil
}

// FindActive returns the rental granting access at instant now, or nil.
// Expiry is evaluated against expires_at, not the status column, so a
// rental the sweeper has not flipped yet still reads as expired.
func (r *RentalRepo) FindActive(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType, now time.Time) (*domain.Rental, error) {
	query := `SELECT id, user_id, content_id, content_type, price_paid, payment_id, expires_at, status, created_at
		FROM rentals
		WHERE user_id = $1 AND content_id = $2 AND content_type = $3 AND status = 'active' AND expires_at >= $4
		ORDER BY expires_at DESC LIMIT 1`

	rental := &domain.Rental{}
	err := r.pool.QueryRow(ctx, query, userID, contentID, contentType, now).Scan(
		&rental.ID, &rental.UserID, &rental.ContentID, &rental.ContentType,
		&rental.PricePaid, &rental.PaymentID, &rental.ExpiresAt, &rental.Status, &rental.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active rental: %w", err)
	}
	return rental, nil
}

// ExpireOverdue flips overdue active rentals to expired and reports how
// many rows changed. Run periodically; access checks do not depend on it.
func (r *RentalRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE rentals SET status = 'expired' WHERE status = 'active' AND expires_at < $1`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue rentals: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireOverdueFor flips overdue active rentals for one (user, content)
// inside the caller's transaction, so the insert that follows is not blocked
// by the one-active-per-content index.
func (r *RentalRepo) ExpireOverdueFor(ctx context.Context, tx pgx.Tx, userID, contentID uuid.UUID, contentType domain.ContentType, now time.Time) (int64, error) {
	query := `UPDATE rentals SET status = 'expired'
		WHERE user_id = $1 AND content_id = $2 AND content_type = $3 AND status = 'active' AND expires_at < $4`

	tag, err := tx.Exec(ctx, query, userID, contentID, contentType, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue rentals for content: %w", err)
	}
	return tag.RowsAffected(), nil
}
