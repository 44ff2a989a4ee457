package postgres

import (
	"context"
	"errors"
	"fmt"

	"vidpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PurchaseRepo implements ports.PurchaseRepository.
type PurchaseRepo struct {
	pool Pool
}

// NewPurchaseRepo creates a new PurchaseRepo.
func NewPurchaseRepo(pool Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

// Create inserts a purchase inside the caller's transaction. The unique
// index on (user_id, content_id, content_type) backstops the duplicate
// checks upstream.
func (r *PurchaseRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Purchase) error {
	query := `INSERT INTO purchases (id, user_id, content_id, content_type, price_paid, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.UserID, p.ContentID, p.ContentType, p.PricePaid, p.PaymentID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// Find returns the purchase for (user, content), or nil when none exists.
func (r *PurchaseRepo) Find(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType) (*domain.Purchase, error) {
	query := `SELECT id, user_id, content_id, content_type, price_paid, payment_id, created_at
		FROM purchases WHERE user_id = $1 AND content_id = $2 AND content_type = $3`

	p := &domain.Purchase{}
	err := r.pool.QueryRow(ctx, query, userID, contentID, contentType).Scan(
		&p.ID, &p.UserID, &p.ContentID, &p.ContentType, &p.PricePaid, &p.PaymentID, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find purchase: %w", err)
	}
	return p, nil
}
