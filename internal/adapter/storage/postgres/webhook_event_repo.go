package postgres

import (
	"context"
	"fmt"
	"time"

	"vidpay/internal/core/domain"

	"github.com/google/uuid"
)

// WebhookEventRepo implements ports.WebhookEventRepository. Event rows are
// the durable audit of every delivery the provider sent us.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Create logs a received event before it is dispatched.
func (r *WebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	query := `INSERT INTO webhook_events (id, provider, event_type, provider_event_id, provider_ref, payload, source_ip, processed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.Provider, e.EventType, e.ProviderEventID, e.ProviderRef,
		e.Payload, e.SourceIP, e.ProcessedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// MarkProcessed stamps the event once dispatch finished.
func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	query := `UPDATE webhook_events SET processed_at = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, processedAt, id)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", id)
	}
	return nil
}
