package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
	"vidpay/internal/metrics"
	"vidpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// dedupTTL bounds the replay window. Events older than this are also
// rejected as stale by the delivery handler's rate limiter upstream.
const dedupTTL = 72 * time.Hour

// gatewayEvent mirrors the fields of the provider's event envelope that we
// act on. Everything else rides along in the raw payload.
type gatewayEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID            json.Number `json:"id"`
		Reference     string      `json:"reference"`
		Amount        int64       `json:"amount"`
		GatewayResp   string      `json:"gateway_response"`
		Authorization struct {
			AuthorizationCode string `json:"authorization_code"`
		} `json:"authorization"`
	} `json:"data"`
}

// WebhookServiceImpl verifies, deduplicates and dispatches provider events.
type WebhookServiceImpl struct {
	signature ports.SignatureService
	dedup     ports.WebhookDedupStore
	eventRepo ports.WebhookEventRepository
	payments  ports.PaymentService
	log       zerolog.Logger
}

// NewWebhookService creates a new WebhookServiceImpl.
func NewWebhookService(
	signature ports.SignatureService,
	dedup ports.WebhookDedupStore,
	eventRepo ports.WebhookEventRepository,
	payments ports.PaymentService,
	log zerolog.Logger,
) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		signature: signature,
		dedup:     dedup,
		eventRepo: eventRepo,
		payments:  payments,
		log:       log,
	}
}

// HandleEvent processes one webhook delivery. The signature covers the raw
// body exactly as received; any reformatting before this point breaks it.
func (s *WebhookServiceImpl) HandleEvent(ctx context.Context, rawBody []byte, signature, sourceIP string) error {
	if !s.signature.Verify(rawBody, signature) {
		s.log.Warn().
			Str("source_ip", sourceIP).
			Msg("webhook signature verification failed")
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return apperror.ErrInvalidSignature()
	}

	var evt gatewayEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return apperror.Validation("malformed webhook payload")
	}
	if evt.Event == "" {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return apperror.Validation("webhook payload missing event type")
	}

	identity := domain.EventIdentity(evt.Event, evt.Data.Reference, evt.Data.ID.String())

	// Peek only. The identity is marked seen after dispatch succeeds, so a
	// crash mid-dispatch leaves the delivery retryable.
	seen, err := s.dedup.Seen(ctx, identity)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("dedup lookup: %w", err))
	}
	if seen {
		s.log.Info().
			Str("identity", identity).
			Str("source_ip", sourceIP).
			Msg("duplicate webhook delivery ignored")
		metrics.WebhookEventsTotal.WithLabelValues(evt.Event, "duplicate").Inc()
		return nil
	}

	// Log-first: the event row exists before any side effect it causes.
	record := &domain.WebhookEvent{
		ID:              uuid.New(),
		Provider:        string(domain.ProviderGateway),
		EventType:       evt.Event,
		ProviderEventID: evt.Data.ID.String(),
		ProviderRef:     evt.Data.Reference,
		Payload:         rawBody,
		SourceIP:        sourceIP,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.eventRepo.Create(ctx, record); err != nil {
		return apperror.InternalError(fmt.Errorf("record webhook event: %w", err))
	}

	if err := s.dispatch(ctx, evt); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Event, "error").Inc()
		return err
	}

	if err := s.dedup.Mark(ctx, identity, dedupTTL); err != nil {
		// Dispatch already succeeded and the terminal-state guard absorbs
		// the redelivery this may cause. Log and accept.
		s.log.Warn().Err(err).Str("identity", identity).Msg("failed to mark webhook identity")
	}
	if err := s.eventRepo.MarkProcessed(ctx, record.ID, time.Now().UTC()); err != nil {
		s.log.Warn().Err(err).Str("event_id", record.ID.String()).Msg("failed to mark webhook event processed")
	}

	metrics.WebhookEventsTotal.WithLabelValues(evt.Event, "processed").Inc()
	return nil
}

func (s *WebhookServiceImpl) dispatch(ctx context.Context, evt gatewayEvent) error {
	switch evt.Event {
	case "charge.success":
		if evt.Data.Reference == "" {
			return apperror.Validation("charge event missing reference")
		}
		_, err := s.payments.CompleteByProviderRef(ctx, evt.Data.Reference, evt.Data.Authorization.AuthorizationCode)
		return err
	case "charge.failed":
		if evt.Data.Reference == "" {
			return apperror.Validation("charge event missing reference")
		}
		reason := evt.Data.GatewayResp
		if reason == "" {
			reason = "declined by provider"
		}
		_, err := s.payments.FailByProviderRef(ctx, evt.Data.Reference, reason)
		return err
	default:
		// Unhandled event types (transfers, disputes) are recorded and
		// acknowledged so the provider stops retrying them.
		s.log.Info().Str("event", evt.Event).Msg("unhandled webhook event type")
		return nil
	}
}
