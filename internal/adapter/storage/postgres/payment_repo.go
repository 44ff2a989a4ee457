package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, user_id, amount, currency, purpose, provider, provider_ref,
	status, metadata, idempotency_key, authorization_enc, failure_reason,
	created_at, updated_at, completed_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment row.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, user_id, amount, currency, purpose, provider, provider_ref,
		status, metadata, idempotency_key, authorization_enc, failure_reason, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.UserID, p.Amount, p.Currency, p.Purpose, p.Provider, p.ProviderRef,
		p.Status, p.Metadata, p.IdempotencyKey, p.AuthorizationEnc, p.FailureReason,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	return r.scanPayment(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey fetches the payment a client idempotency key maps to.
func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE idempotency_key = $1`, paymentColumns)
	return r.scanPayment(r.pool.QueryRow(ctx, query, key))
}

// GetByProviderRef fetches a payment by its gateway reference.
func (r *PaymentRepo) GetByProviderRef(ctx context.Context, ref string) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE provider_ref = $1`, paymentColumns)
	return r.scanPayment(r.pool.QueryRow(ctx, query, ref))
}

// GetByProviderRefForUpdate locks the payment row for the duration of tx.
func (r *PaymentRepo) GetByProviderRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE provider_ref = $1 FOR UPDATE`, paymentColumns)
	return r.scanPayment(tx.QueryRow(ctx, query, ref))
}

// UpdateStatus applies a guarded status transition: the UPDATE only matches
// while the row is not already terminal, so replayed completions and
// late-arriving failures become no-ops at the database level. Returns true
// if a row changed.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string) (bool, error) {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status == domain.PaymentStatusCompleted {
		completedAt = &now
	}

	query := `UPDATE payments
		SET status = $1, failure_reason = $2, completed_at = COALESCE($3, completed_at), updated_at = $4
		WHERE id = $5 AND status NOT IN ('completed', 'failed')`

	tag, err := q(r.pool, tx).Exec(ctx, query, status, failureReason, completedAt, now, id)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetProviderRef attaches the gateway reference after initialization.
func (r *PaymentRepo) SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error {
	query := `UPDATE payments SET provider_ref = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.pool.Exec(ctx, query, ref, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", id)
	}
	return nil
}

// SetAuthorization stores the encrypted reusable card authorization.
func (r *PaymentRepo) SetAuthorization(ctx context.Context, tx pgx.Tx, id uuid.UUID, authorizationEnc string) error {
	query := `UPDATE payments SET authorization_enc = $1, updated_at = $2 WHERE id = $3`
	_, err := q(r.pool, tx).Exec(ctx, query, authorizationEnc, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set authorization: %w", err)
	}
	return nil
}

// scanPayment is a helper to scan a single row into a Payment.
func (r *PaymentRepo) scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Purpose, &p.Provider, &p.ProviderRef,
		&p.Status, &p.Metadata, &p.IdempotencyKey, &p.AuthorizationEnc, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}
