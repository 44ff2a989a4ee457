package postgres

import (
	"context"
	"testing"
	"time"

	"vidpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(userID uuid.UUID) *domain.Payment {
	ref := "rental_abcd1234_1700000000000_0a1b2c3d"
	key := "idem-key-0001"
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Payment{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      50000,
		Currency:    "NGN",
		Purpose:     domain.PurposeRental,
		Provider:    domain.ProviderGateway,
		ProviderRef: &ref,
		Status:      domain.PaymentStatusPending,
		Metadata: domain.PaymentMetadata{
			ContentID:   uuid.New(),
			ContentType: domain.ContentTypeMovie,
		},
		IdempotencyKey: &key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func paymentRowColumns() []string {
	return []string{"id", "user_id", "amount", "currency", "purpose", "provider", "provider_ref",
		"status", "metadata", "idempotency_key", "authorization_enc", "failure_reason",
		"created_at", "updated_at", "completed_at"}
}

func paymentRow(p *domain.Payment) *pgxmock.Rows {
	return pgxmock.NewRows(paymentRowColumns()).AddRow(
		p.ID, p.UserID, p.Amount, p.Currency, p.Purpose, p.Provider, p.ProviderRef,
		p.Status, p.Metadata, p.IdempotencyKey, p.AuthorizationEnc, p.FailureReason,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
}

func TestPaymentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.UserID, p.Amount, p.Currency, p.Purpose, p.Provider, p.ProviderRef,
			p.Status, p.Metadata, p.IdempotencyKey, p.AuthorizationEnc, p.FailureReason,
			p.CreatedAt, p.UpdatedAt, p.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByIdempotencyKey_Miss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM payments WHERE idempotency_key").
		WithArgs("unknown-key").
		WillReturnRows(pgxmock.NewRows(paymentRowColumns()))

	result, err := repo.GetByIdempotencyKey(context.Background(), "unknown-key")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByProviderRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM payments WHERE provider_ref").
		WithArgs(*p.ProviderRef).
		WillReturnRows(paymentRow(p))

	result, err := repo.GetByProviderRef(context.Background(), *p.ProviderRef)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, p.ID, result.ID)
	assert.Equal(t, domain.PaymentStatusPending, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByProviderRefForUpdate_LocksRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM payments WHERE provider_ref = .+ FOR UPDATE").
		WithArgs(*p.ProviderRef).
		WillReturnRows(paymentRow(p))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByProviderRefForUpdate(context.Background(), tx, *p.ProviderRef)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, p.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_UpdateStatus_GuardedTransition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()

	mock.ExpectExec(`UPDATE payments\s+SET status = .+ WHERE id = .+ AND status NOT IN \('completed', 'failed'\)`).
		WithArgs(domain.PaymentStatusCompleted, (*string)(nil), pgxmock.AnyArg(), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	transitioned, err := repo.UpdateStatus(context.Background(), nil, id, domain.PaymentStatusCompleted, nil)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_UpdateStatus_TerminalRowUntouched(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()
	reason := "declined by provider"

	// Guard matched no rows: the payment was already terminal.
	mock.ExpectExec("UPDATE payments").
		WithArgs(domain.PaymentStatusFailed, &reason, (*time.Time)(nil), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	transitioned, err := repo.UpdateStatus(context.Background(), nil, id, domain.PaymentStatusFailed, &reason)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_SetAuthorization_InTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET authorization_enc").
		WithArgs("enc_auth_blob", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.SetAuthorization(context.Background(), tx, id, "enc_auth_blob")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
