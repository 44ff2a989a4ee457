package service

import (
	"context"
	"fmt"
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
	"vidpay/internal/metrics"
	"vidpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WalletLedgerService implements ports.WalletLedger. It is the only code
// path that mutates wallet balances: the balance check, the balance write
// and the ledger append all happen under the wallet row lock, so two
// concurrent debits can never both pass a stale balance check.
type WalletLedgerService struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.WalletTransactionRepository
	log        zerolog.Logger
}

// NewWalletLedgerService creates a new WalletLedgerService.
func NewWalletLedgerService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.WalletTransactionRepository,
	log zerolog.Logger,
) *WalletLedgerService {
	return &WalletLedgerService{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		log:        log,
	}
}

// ApplyTransaction atomically adjusts a wallet balance and appends the
// ledger entry recording the resulting balance. It must run inside the
// caller's database transaction; a debit that would take the balance
// negative fails under the lock and leaves the balance unchanged.
func (s *WalletLedgerService) ApplyTransaction(ctx context.Context, tx pgx.Tx, req ports.LedgerRequest) (*domain.WalletTransaction, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount(fmt.Sprintf("ledger amount must be positive, got %d", req.Amount))
	}
	if !req.Type.IsValid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown transaction type %q", req.Type))
	}

	// Lock & re-read the wallet; any pre-check the caller did was advisory.
	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	delta := req.Amount
	if req.Type == domain.TransactionTypeDebit {
		delta = -req.Amount
	}

	newBalance := wallet.Balance + delta
	if newBalance < 0 {
		return nil, apperror.ErrInsufficientFunds(-newBalance)
	}

	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	entry := &domain.WalletTransaction{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		Amount:       req.Amount,
		Type:         req.Type,
		Description:  req.Description,
		PaymentID:    req.PaymentID,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	metrics.WalletTransactionsTotal.WithLabelValues(string(req.Type)).Inc()

	s.log.Debug().
		Str("wallet_id", wallet.ID.String()).
		Str("type", string(req.Type)).
		Int64("amount", req.Amount).
		Int64("balance_after", newBalance).
		Msg("ledger entry applied")

	return entry, nil
}

// GetWallet returns the user's wallet, or not-found when the user has never
// topped up (wallets are created lazily on first credit).
func (s *WalletLedgerService) GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

// GetStatement returns one page of the user's ledger, newest first.
func (s *WalletLedgerService) GetStatement(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.WalletTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, 0, apperror.ErrNotFound("wallet")
	}

	entries, total, err := s.ledgerRepo.ListByWallet(ctx, wallet.ID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	return entries, total, nil
}
