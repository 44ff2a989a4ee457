package service

import (
	"context"
	"errors"
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

// FulfillmentServiceImpl implements ports.FulfillmentService. Fulfill runs
// exactly once per payment, inside the database transaction that marks the
// payment completed: if the entitlement write fails the whole transition
// rolls back and the payment is forced to failed for manual reconciliation.
type FulfillmentServiceImpl struct {
	rentalRepo   ports.RentalRepository
	purchaseRepo ports.PurchaseRepository
	walletRepo   ports.WalletRepository
	ledger       ports.WalletLedger
	log          zerolog.Logger
}

// NewFulfillmentService creates a new FulfillmentServiceImpl.
func NewFulfillmentService(
	rentalRepo ports.RentalRepository,
	purchaseRepo ports.PurchaseRepository,
	walletRepo ports.WalletRepository,
	ledger ports.WalletLedger,
	log zerolog.Logger,
) *FulfillmentServiceImpl {
	return &FulfillmentServiceImpl{
		rentalRepo:   rentalRepo,
		purchaseRepo: purchaseRepo,
		walletRepo:   walletRepo,
		ledger:       ledger,
		log:          log,
	}
}

// Fulfill dispatches on the payment's purpose. The Purpose enum is closed;
// an unknown value is a failure, not a silently-ignored default.
func (s *FulfillmentServiceImpl) Fulfill(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	var err error
	switch p.Purpose {
	case domain.PurposeWalletTopup:
		err = s.creditWallet(ctx, tx, p)
	case domain.PurposeRental:
		err = s.createRental(ctx, tx, p)
	case domain.PurposePurchase:
		err = s.createPurchase(ctx, tx, p)
	case domain.PurposeSubscription:
		err = apperror.Fulfillment(fmt.Errorf("subscription fulfillment not supported"))
	default:
		err = apperror.Fulfillment(fmt.Errorf("unknown purpose %q", p.Purpose))
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.FulfillmentsTotal.WithLabelValues(string(p.Purpose), outcome).Inc()
	return err
}

// creditWallet credits the payment amount to the payer's wallet. For users
// paying by card before ever funding a wallet, the wallet row is created on
// first credit; the unique index on user_id resolves concurrent creation.
func (s *FulfillmentServiceImpl) creditWallet(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, p.UserID)
	if err != nil {
		return apperror.Fulfillment(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		now := time.Now().UTC()
		wallet = &domain.Wallet{
			ID:        uuid.New(),
			UserID:    p.UserID,
			Balance:   0,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.walletRepo.Create(ctx, wallet); err != nil {
			return apperror.Fulfillment(fmt.Errorf("create wallet: %w", err))
		}
		if wallet, err = s.walletRepo.GetByUserIDForUpdate(ctx, tx, p.UserID); err != nil || wallet == nil {
			return apperror.Fulfillment(fmt.Errorf("lock created wallet: %w", err))
		}
	}

	paymentID := p.ID
	_, err = s.ledger.ApplyTransaction(ctx, tx, ports.LedgerRequest{
		WalletID:    wallet.ID,
		Amount:      p.Amount,
		Type:        domain.TransactionTypeCredit,
		Description: "Wallet top-up",
		PaymentID:   &paymentID,
	})
	if err != nil {
		return apperror.Fulfillment(fmt.Errorf("credit wallet: %w", err))
	}
	return nil
}

func (s *FulfillmentServiceImpl) createRental(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	now := time.Now().UTC()

	// A row past its expiry may still read 'active' between sweeper runs.
	// Flip it inside this transaction so the one-active-per-content index
	// does not block a legitimate re-rental.
	if _, err := s.rentalRepo.ExpireOverdueFor(ctx, tx, p.UserID, p.Metadata.ContentID, p.Metadata.ContentType, now); err != nil {
		return apperror.Fulfillment(fmt.Errorf("expire overdue rentals: %w", err))
	}

	// Exclusivity re-check directly before the insert; the processor's
	// earlier check guards the charge, this one guards the row.
	existing, err := s.rentalRepo.FindActive(ctx, p.UserID, p.Metadata.ContentID, p.Metadata.ContentType, now)
	if err != nil {
		return apperror.Fulfillment(fmt.Errorf("check active rental: %w", err))
	}
	if existing != nil {
		return apperror.ErrActiveRentalExists()
	}

	duration := p.Metadata.ContentType.DefaultRentalDuration()
	if p.Metadata.RentalDurationHours > 0 {
		duration = time.Duration(p.Metadata.RentalDurationHours) * time.Hour
	}

	rental := &domain.Rental{
		ID:          uuid.New(),
		UserID:      p.UserID,
		ContentID:   p.Metadata.ContentID,
		ContentType: p.Metadata.ContentType,
		PricePaid:   p.Amount,
		PaymentID:   p.ID,
		ExpiresAt:   now.Add(duration),
		Status:      domain.RentalStatusActive,
		CreatedAt:   now,
	}
	if err := s.rentalRepo.Create(ctx, tx, rental); err != nil {
		if errors.Is(err, ports.ErrDuplicateActiveRental) {
			// Lost the race to a concurrent completion for the same content.
			// Two in-flight card payments share no row lock, so the pre-insert
			// check cannot see the rival's uncommitted rental; the unique
			// index can.
			return apperror.ErrActiveRentalExists()
		}
		return apperror.Fulfillment(fmt.Errorf("insert rental: %w", err))
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("content_id", rental.ContentID.String()).
		Str("content_type", string(rental.ContentType)).
		Time("expires_at", rental.ExpiresAt).
		Msg("rental fulfilled")
	return nil
}

func (s *FulfillmentServiceImpl) createPurchase(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	existing, err := s.purchaseRepo.Find(ctx, p.UserID, p.Metadata.ContentID, p.Metadata.ContentType)
	if err != nil {
		return apperror.Fulfillment(fmt.Errorf("check existing purchase: %w", err))
	}
	if existing != nil {
		// Idempotent: the entitlement already exists, nothing to grant twice.
		s.log.Info().
			Str("payment_id", p.ID.String()).
			Str("purchase_id", existing.ID.String()).
			Msg("purchase already fulfilled, skipping")
		return nil
	}

	purchase := &domain.Purchase{
		ID:          uuid.New(),
		UserID:      p.UserID,
		ContentID:   p.Metadata.ContentID,
		ContentType: p.Metadata.ContentType,
		PricePaid:   p.Amount,
		PaymentID:   p.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.purchaseRepo.Create(ctx, tx, purchase); err != nil {
		return apperror.Fulfillment(fmt.Errorf("insert purchase: %w", err))
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("content_id", purchase.ContentID.String()).
		Msg("purchase fulfilled")
	return nil
}
