package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.IdempotencyKey != nil {
		for _, existing := range r.payments {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *p.IdempotencyKey {
				return fmt.Errorf("duplicate idempotency key")
			}
		}
	}
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetByProviderRef(ctx context.Context, ref string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.ProviderRef != nil && *p.ProviderRef == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetByProviderRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*domain.Payment, error) {
	return r.GetByProviderRef(ctx, ref)
}

func (r *inMemoryPaymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, nil
	}
	if p.Status.IsTerminal() {
		return false, nil
	}
	p.Status = status
	p.FailureReason = failureReason
	p.UpdatedAt = time.Now().UTC()
	if status == domain.PaymentStatusCompleted {
		now := time.Now().UTC()
		p.CompletedAt = &now
	}
	return true, nil
}

func (r *inMemoryPaymentRepo) SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("payment not found")
	}
	p.ProviderRef = &ref
	return nil
}

func (r *inMemoryPaymentRepo) SetAuthorization(ctx context.Context, tx pgx.Tx, id uuid.UUID, authorizationEnc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("payment not found")
	}
	p.AuthorizationEnc = &authorizationEnc
	return nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.wallets {
		if existing.UserID == w.UserID {
			return fmt.Errorf("wallet already exists for user")
		}
	}
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Wallet Transaction Repo ---

type inMemoryWalletTransactionRepo struct {
	mu      sync.RWMutex
	entries []domain.WalletTransaction
}

func newInMemoryWalletTransactionRepo() *inMemoryWalletTransactionRepo {
	return &inMemoryWalletTransactionRepo{}
}

func (r *inMemoryWalletTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.WalletTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *t)
	return nil
}

func (r *inMemoryWalletTransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.WalletTransaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.WalletTransaction
	for _, e := range r.entries {
		if e.WalletID == walletID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.WalletTransaction{}, total, nil
	}
	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// --- In-Memory Rental Repo ---

type inMemoryRentalRepo struct {
	mu      sync.RWMutex
	rentals map[uuid.UUID]*domain.Rental
}

func newInMemoryRentalRepo() *inMemoryRentalRepo {
	return &inMemoryRentalRepo{rentals: make(map[uuid.UUID]*domain.Rental)}
}

func (r *inMemoryRentalRepo) Create(ctx context.Context, tx pgx.Tx, rental *domain.Rental) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the partial unique index on (user_id, content_id, content_type)
	// WHERE status = 'active'.
	for _, existing := range r.rentals {
		if existing.UserID == rental.UserID &&
			existing.ContentID == rental.ContentID &&
			existing.ContentType == rental.ContentType &&
			existing.Status == domain.RentalStatusActive {
			return ports.ErrDuplicateActiveRental
		}
	}
	cp := *rental
	r.rentals[rental.ID] = &cp
	return nil
}

func (r *inMemoryRentalRepo) FindActive(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType, now time.Time) (*domain.Rental, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Rental
	for _, rental := range r.rentals {
		if rental.UserID != userID || rental.ContentID != contentID || rental.ContentType != contentType {
			continue
		}
		if !rental.IsActive(now) {
			continue
		}
		if best == nil || rental.ExpiresAt.After(best.ExpiresAt) {
			best = rental
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *inMemoryRentalRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rental := range r.rentals {
		if rental.Status == domain.RentalStatusActive && rental.ExpiresAt.Before(now) {
			rental.Status = domain.RentalStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *inMemoryRentalRepo) get(id uuid.UUID) (*domain.Rental, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rental, ok := r.rentals[id]
	if !ok {
		return nil, fmt.Errorf("rental %s not found", id)
	}
	cp := *rental
	return &cp, nil
}

func (r *inMemoryRentalRepo) ExpireOverdueFor(ctx context.Context, tx pgx.Tx, userID, contentID uuid.UUID, contentType domain.ContentType, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rental := range r.rentals {
		if rental.UserID == userID && rental.ContentID == contentID && rental.ContentType == contentType &&
			rental.Status == domain.RentalStatusActive && rental.ExpiresAt.Before(now) {
			rental.Status = domain.RentalStatusExpired
			n++
		}
	}
	return n, nil
}

// --- In-Memory Purchase Repo ---

type inMemoryPurchaseRepo struct {
	mu        sync.RWMutex
	purchases map[uuid.UUID]*domain.Purchase
}

func newInMemoryPurchaseRepo() *inMemoryPurchaseRepo {
	return &inMemoryPurchaseRepo{purchases: make(map[uuid.UUID]*domain.Purchase)}
}

func (r *inMemoryPurchaseRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.purchases {
		if existing.UserID == p.UserID && existing.ContentID == p.ContentID && existing.ContentType == p.ContentType {
			return fmt.Errorf("duplicate purchase")
		}
	}
	cp := *p
	r.purchases[p.ID] = &cp
	return nil
}

func (r *inMemoryPurchaseRepo) Find(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType) (*domain.Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.purchases {
		if p.UserID == userID && p.ContentID == contentID && p.ContentType == contentType {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Webhook Event Repo ---

type inMemoryWebhookEventRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.WebhookEvent
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{events: make(map[uuid.UUID]*domain.WebhookEvent)}
}

func (r *inMemoryWebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events[e.ID] = &cp
	return nil
}

func (r *inMemoryWebhookEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("event not found")
	}
	e.ProcessedAt = &processedAt
	return nil
}

func (r *inMemoryWebhookEventRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// --- Locking Transactor ---

// lockingTransactor serializes transaction blocks with a single mutex,
// approximating the row-level FOR UPDATE locking the real postgres layer
// relies on. Commit and Rollback both release the lock exactly once.
type lockingTransactor struct {
	mu sync.Mutex
}

func newLockingTransactor() *lockingTransactor {
	return &lockingTransactor{}
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{release: &t.mu}, nil
}

type memTx struct {
	noopTx
	release *sync.Mutex
	once    sync.Once
}

func (t *memTx) Commit(ctx context.Context) error {
	t.once.Do(t.release.Unlock)
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.once.Do(t.release.Unlock)
	return nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
