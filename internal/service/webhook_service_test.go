package service

import (
	"context"
	"fmt"
	"testing"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type webhookTestDeps struct {
	svc       *WebhookServiceImpl
	signature *mocks.MockSignatureService
	dedup     *mocks.MockWebhookDedupStore
	eventRepo *mocks.MockWebhookEventRepository
	payments  *mocks.MockPaymentService
	ctrl      *gomock.Controller
}

func setupWebhookService(t *testing.T) *webhookTestDeps {
	ctrl := gomock.NewController(t)
	d := &webhookTestDeps{
		signature: mocks.NewMockSignatureService(ctrl),
		dedup:     mocks.NewMockWebhookDedupStore(ctrl),
		eventRepo: mocks.NewMockWebhookEventRepository(ctrl),
		payments:  mocks.NewMockPaymentService(ctrl),
		ctrl:      ctrl,
	}
	d.svc = NewWebhookService(d.signature, d.dedup, d.eventRepo, d.payments, zerolog.Nop())
	return d
}

func chargeSuccessBody(ref string) []byte {
	return fmt.Appendf(nil, `{
		"event": "charge.success",
		"data": {
			"id": 302961,
			"reference": %q,
			"amount": 500000,
			"gateway_response": "Successful",
			"authorization": {"authorization_code": "AUTH_q3zvs0dh"}
		}
	}`, ref)
}

func TestWebhook_ChargeSuccess_Dispatched(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ref := "wallet_topup_abcd1234"
	body := chargeSuccessBody(ref)
	identity := domain.EventIdentity("charge.success", ref, "302961")

	d.signature.EXPECT().Verify(body, "sig").Return(true)
	d.dedup.EXPECT().Seen(ctx, identity).Return(false, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.WebhookEvent) error {
			assert.Equal(t, "charge.success", e.EventType)
			assert.Equal(t, ref, e.ProviderRef)
			assert.Equal(t, "302961", e.ProviderEventID)
			assert.Equal(t, body, e.Payload)
			assert.Equal(t, "203.0.113.9", e.SourceIP)
			return nil
		})
	d.payments.EXPECT().CompleteByProviderRef(ctx, ref, "AUTH_q3zvs0dh").
		Return(&domain.Payment{ID: uuid.New(), Status: domain.PaymentStatusCompleted}, nil)
	// Marked seen only after dispatch succeeded.
	d.dedup.EXPECT().Mark(ctx, identity, dedupTTL).Return(nil)
	d.eventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, d.svc.HandleEvent(ctx, body, "sig", "203.0.113.9"))
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	body := chargeSuccessBody("ref")
	d.signature.EXPECT().Verify(body, "bad").Return(false)
	// Nothing recorded, nothing dispatched.

	err := d.svc.HandleEvent(context.Background(), body, "bad", "203.0.113.9")
	assertAppError(t, err, "AUTH_002")
}

func TestWebhook_DuplicateDeliveryIgnored(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ref := "rental_abcd1234"
	body := chargeSuccessBody(ref)
	identity := domain.EventIdentity("charge.success", ref, "302961")

	d.signature.EXPECT().Verify(body, "sig").Return(true)
	d.dedup.EXPECT().Seen(ctx, identity).Return(true, nil)
	// Acknowledged without dispatch or a second event row.

	require.NoError(t, d.svc.HandleEvent(ctx, body, "sig", "203.0.113.9"))
}

func TestWebhook_DispatchFailureLeavesEventRetryable(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ref := "rental_abcd1234"
	body := chargeSuccessBody(ref)
	identity := domain.EventIdentity("charge.success", ref, "302961")

	d.signature.EXPECT().Verify(body, "sig").Return(true)
	d.dedup.EXPECT().Seen(ctx, identity).Return(false, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.payments.EXPECT().CompleteByProviderRef(ctx, ref, "AUTH_q3zvs0dh").Return(nil, assert.AnError)
	// No Mark: the provider's retry will be processed, not dropped.

	err := d.svc.HandleEvent(ctx, body, "sig", "203.0.113.9")
	assert.Error(t, err)
}

func TestWebhook_ChargeFailed_Dispatched(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ref := "rental_abcd1234"
	body := fmt.Appendf(nil, `{
		"event": "charge.failed",
		"data": {"id": 99, "reference": %q, "gateway_response": "Declined"}
	}`, ref)
	identity := domain.EventIdentity("charge.failed", ref, "99")

	d.signature.EXPECT().Verify(body, "sig").Return(true)
	d.dedup.EXPECT().Seen(ctx, identity).Return(false, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.payments.EXPECT().FailByProviderRef(ctx, ref, "Declined").
		Return(&domain.Payment{ID: uuid.New(), Status: domain.PaymentStatusFailed}, nil)
	d.dedup.EXPECT().Mark(ctx, identity, dedupTTL).Return(nil)
	d.eventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, d.svc.HandleEvent(ctx, body, "sig", "203.0.113.9"))
}

func TestWebhook_UnhandledEventAcknowledged(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(`{"event": "transfer.success", "data": {"reference": "trf_1"}}`)
	identity := domain.EventIdentity("transfer.success", "trf_1", "")

	d.signature.EXPECT().Verify(body, "sig").Return(true)
	d.dedup.EXPECT().Seen(ctx, identity).Return(false, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	// Logged, marked, no payment dispatch.
	d.dedup.EXPECT().Mark(ctx, identity, dedupTTL).Return(nil)
	d.eventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, d.svc.HandleEvent(ctx, body, "sig", "203.0.113.9"))
}

func TestWebhook_MalformedPayloadRejected(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	body := []byte(`{not json`)
	d.signature.EXPECT().Verify(body, "sig").Return(true)

	err := d.svc.HandleEvent(context.Background(), body, "sig", "203.0.113.9")
	assertAppError(t, err, "VAL_001")
}

func TestWebhook_MissingEventTypeRejected(t *testing.T) {
	d := setupWebhookService(t)
	defer d.ctrl.Finish()

	body := []byte(`{"data": {"reference": "ref"}}`)
	d.signature.EXPECT().Verify(body, "sig").Return(true)

	err := d.svc.HandleEvent(context.Background(), body, "sig", "203.0.113.9")
	assertAppError(t, err, "VAL_001")
}
