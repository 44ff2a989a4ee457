package ports

import (
	"context"
	"errors"
	"time"

	"vidpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateActiveRental reports the unique index on rentals rejecting a
// second active row for the same (user, content id, content type).
var ErrDuplicateActiveRental = errors.New("active rental already exists")

// PaymentRepository defines persistence for payment rows. Payments are
// append-and-update only; rows are never deleted.
// Methods accepting pgx.Tx run inside transaction blocks for pessimistic locking.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
	GetByProviderRef(ctx context.Context, ref string) (*domain.Payment, error)
	GetByProviderRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*domain.Payment, error)
	// UpdateStatus performs a guarded transition: the update only applies while
	// the row is not already terminal. Returns true if a row changed.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string) (bool, error)
	SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error
	SetAuthorization(ctx context.Context, tx pgx.Tx, id uuid.UUID, authorizationEnc string) error
}

// WalletRepository defines persistence for wallets.
type WalletRepository interface {
	Create(ctx context.Context, w *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error
}

// WalletTransactionRepository appends and reads immutable ledger entries.
type WalletTransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.WalletTransaction) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.WalletTransaction, int64, error)
}

// RentalRepository defines persistence for time-bounded entitlements.
type RentalRepository interface {
	// Create inserts a rental. Returns ErrDuplicateActiveRental when an
	// active row for the same (user, content) already exists.
	Create(ctx context.Context, tx pgx.Tx, r *domain.Rental) error
	// FindActive returns the active, non-expired rental for (user, content),
	// or nil when none exists.
	FindActive(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType, now time.Time) (*domain.Rental, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	// ExpireOverdueFor flips the user's overdue active rentals for one piece
	// of content inside the caller's transaction, clearing the way for a
	// re-rental after expiry.
	ExpireOverdueFor(ctx context.Context, tx pgx.Tx, userID, contentID uuid.UUID, contentType domain.ContentType, now time.Time) (int64, error)
}

// PurchaseRepository defines persistence for permanent entitlements.
type PurchaseRepository interface {
	Create(ctx context.Context, tx pgx.Tx, p *domain.Purchase) error
	Find(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType) (*domain.Purchase, error)
}

// WebhookEventRepository logs received provider callbacks.
type WebhookEventRepository interface {
	Create(ctx context.Context, e *domain.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
