package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent logs one received provider callback. The row is created on
// receipt (processed_at null) and updated exactly once when dispatch
// finishes; it is never overwritten mid-flight. Together with the redis
// dedup set it makes at-least-once delivery a safe no-op.
type WebhookEvent struct {
	ID              uuid.UUID  `json:"id"`
	Provider        string     `json:"provider"`
	EventType       string     `json:"event_type"`
	ProviderEventID string     `json:"provider_event_id"`
	ProviderRef     string     `json:"provider_ref"`
	Payload         []byte     `json:"payload"`
	SourceIP        string     `json:"source_ip,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Identity builds the dedup key for a provider event. The provider event id
// is kept in the key even when empty (some transfer events omit it), so
// dedup degrades to type+reference rather than treating every delivery as
// new.
func (e *WebhookEvent) Identity() string {
	return EventIdentity(e.EventType, e.ProviderRef, e.ProviderEventID)
}

// EventIdentity is the canonical event identity format.
func EventIdentity(eventType, providerRef, providerEventID string) string {
	return eventType + ":" + providerRef + ":" + providerEventID
}
