package service

import (
	"context"
	"testing"
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
	"vidpay/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fulfillmentTestDeps struct {
	svc          *FulfillmentServiceImpl
	rentalRepo   *mocks.MockRentalRepository
	purchaseRepo *mocks.MockPurchaseRepository
	walletRepo   *mocks.MockWalletRepository
	ledger       *mocks.MockWalletLedger
	ctrl         *gomock.Controller
}

func setupFulfillment(t *testing.T) *fulfillmentTestDeps {
	ctrl := gomock.NewController(t)
	d := &fulfillmentTestDeps{
		rentalRepo:   mocks.NewMockRentalRepository(ctrl),
		purchaseRepo: mocks.NewMockPurchaseRepository(ctrl),
		walletRepo:   mocks.NewMockWalletRepository(ctrl),
		ledger:       mocks.NewMockWalletLedger(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewFulfillmentService(d.rentalRepo, d.purchaseRepo, d.walletRepo, d.ledger, zerolog.Nop())
	return d
}

func completedPayment(purpose domain.Purpose, contentType domain.ContentType) *domain.Payment {
	return &domain.Payment{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Amount:   50000,
		Currency: "NGN",
		Purpose:  purpose,
		Metadata: domain.PaymentMetadata{
			ContentID:   uuid.New(),
			ContentType: contentType,
		},
	}
}

func TestFulfillment_Rental_MovieDefaultDuration(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeRental, domain.ContentTypeMovie)

	d.rentalRepo.EXPECT().ExpireOverdueFor(ctx, tx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).Return(int64(0), nil)
	d.rentalRepo.EXPECT().FindActive(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).Return(nil, nil)
	d.rentalRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, r *domain.Rental) error {
			assert.Equal(t, p.UserID, r.UserID)
			assert.Equal(t, p.ID, r.PaymentID)
			assert.Equal(t, int64(50000), r.PricePaid)
			assert.Equal(t, domain.RentalStatusActive, r.Status)
			assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), r.ExpiresAt, time.Minute)
			return nil
		})

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_Rental_SeasonDefaultDuration(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeRental, domain.ContentTypeSeason)

	d.rentalRepo.EXPECT().ExpireOverdueFor(ctx, tx, p.UserID, p.Metadata.ContentID, domain.ContentTypeSeason, gomock.Any()).Return(int64(0), nil)
	d.rentalRepo.EXPECT().FindActive(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeSeason, gomock.Any()).Return(nil, nil)
	d.rentalRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, r *domain.Rental) error {
			assert.WithinDuration(t, time.Now().UTC().Add(336*time.Hour), r.ExpiresAt, time.Minute)
			return nil
		})

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_Rental_MetadataDurationOverride(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeRental, domain.ContentTypeEpisode)
	p.Metadata.RentalDurationHours = 72

	d.rentalRepo.EXPECT().ExpireOverdueFor(ctx, tx, p.UserID, p.Metadata.ContentID, domain.ContentTypeEpisode, gomock.Any()).Return(int64(0), nil)
	d.rentalRepo.EXPECT().FindActive(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeEpisode, gomock.Any()).Return(nil, nil)
	d.rentalRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, r *domain.Rental) error {
			assert.WithinDuration(t, time.Now().UTC().Add(72*time.Hour), r.ExpiresAt, time.Minute)
			return nil
		})

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_Rental_ExclusivityRecheck(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeRental, domain.ContentTypeMovie)

	// A concurrent rental slipped in between the processor's check and here.
	d.rentalRepo.EXPECT().ExpireOverdueFor(ctx, tx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).Return(int64(0), nil)
	d.rentalRepo.EXPECT().FindActive(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).
		Return(&domain.Rental{ID: uuid.New(), Status: domain.RentalStatusActive}, nil)

	err := d.svc.Fulfill(ctx, tx, p)
	assertAppError(t, err, "CON_001")
}

func TestFulfillment_Rental_DuplicateIndexMapsToConflict(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeRental, domain.ContentTypeMovie)

	// Two concurrent gateway completions for the same content lock only
	// their own payment rows, so neither pre-insert check sees the rival's
	// uncommitted rental. The unique index is the backstop and its
	// violation reads as the rental conflict.
	d.rentalRepo.EXPECT().ExpireOverdueFor(ctx, tx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).Return(int64(0), nil)
	d.rentalRepo.EXPECT().FindActive(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).Return(nil, nil)
	d.rentalRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(ports.ErrDuplicateActiveRental)

	err := d.svc.Fulfill(ctx, tx, p)
	assertAppError(t, err, "CON_001")
}

func TestFulfillment_Rental_OverdueRowClearedForRerental(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeRental, domain.ContentTypeMovie)

	// An expired rental the sweeper has not flipped yet is cleared inside
	// this transaction, so the unique index admits the new row.
	d.rentalRepo.EXPECT().ExpireOverdueFor(ctx, tx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).Return(int64(1), nil)
	d.rentalRepo.EXPECT().FindActive(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie, gomock.Any()).Return(nil, nil)
	d.rentalRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_Purchase_Success(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposePurchase, domain.ContentTypeMovie)

	d.purchaseRepo.EXPECT().Find(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie).Return(nil, nil)
	d.purchaseRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, pu *domain.Purchase) error {
			assert.Equal(t, p.ID, pu.PaymentID)
			assert.Equal(t, int64(50000), pu.PricePaid)
			return nil
		})

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_Purchase_AlreadyOwnedIsNoOp(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposePurchase, domain.ContentTypeMovie)

	d.purchaseRepo.EXPECT().Find(ctx, p.UserID, p.Metadata.ContentID, domain.ContentTypeMovie).
		Return(&domain.Purchase{ID: uuid.New()}, nil)
	// No Create: fulfillment is idempotent for purchases.

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_WalletTopup_CreditsExistingWallet(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeWalletTopup, "")
	p.Metadata = domain.PaymentMetadata{}
	p.Amount = 500000
	walletID := uuid.New()

	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, p.UserID).
		Return(&domain.Wallet{ID: walletID, UserID: p.UserID, Balance: 100}, nil)
	d.ledger.EXPECT().ApplyTransaction(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, lr ports.LedgerRequest) (*domain.WalletTransaction, error) {
			assert.Equal(t, walletID, lr.WalletID)
			assert.Equal(t, int64(500000), lr.Amount)
			assert.Equal(t, domain.TransactionTypeCredit, lr.Type)
			require.NotNil(t, lr.PaymentID)
			assert.Equal(t, p.ID, *lr.PaymentID)
			return &domain.WalletTransaction{ID: uuid.New(), BalanceAfter: 500100}, nil
		})

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_WalletTopup_CreatesWalletOnFirstCredit(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	p := completedPayment(domain.PurposeWalletTopup, "")
	p.Metadata = domain.PaymentMetadata{}
	walletID := uuid.New()

	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, p.UserID).Return(nil, nil)
	d.walletRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	// Re-lock after creation.
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, p.UserID).
		Return(&domain.Wallet{ID: walletID, UserID: p.UserID, Balance: 0}, nil)
	d.ledger.EXPECT().ApplyTransaction(ctx, tx, gomock.Any()).
		Return(&domain.WalletTransaction{ID: uuid.New()}, nil)

	require.NoError(t, d.svc.Fulfill(ctx, tx, p))
}

func TestFulfillment_SubscriptionRejected(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	p := completedPayment(domain.PurposeSubscription, "")
	err := d.svc.Fulfill(context.Background(), &mockTx{}, p)
	assertAppError(t, err, "FUL_001")
}

func TestFulfillment_UnknownPurposeRejected(t *testing.T) {
	d := setupFulfillment(t)
	defer d.ctrl.Finish()

	p := completedPayment(domain.Purpose("donation"), "")
	err := d.svc.Fulfill(context.Background(), &mockTx{}, p)
	assertAppError(t, err, "FUL_001")
}
