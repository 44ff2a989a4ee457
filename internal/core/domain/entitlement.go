package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentType identifies what kind of catalog item an entitlement covers.
// Seasons and episodes are distinct content types with independent rental
// rows; episode access additionally inherits from the parent season.
type ContentType string

const (
	ContentTypeMovie   ContentType = "movie"
	ContentTypeSeason  ContentType = "season"
	ContentTypeEpisode ContentType = "episode"
)

// IsValid reports whether t is a known content type.
func (t ContentType) IsValid() bool {
	return t == ContentTypeMovie || t == ContentTypeSeason || t == ContentTypeEpisode
}

// DefaultRentalDuration returns the rental window for a content type when
// the payment metadata carries no explicit override.
func (t ContentType) DefaultRentalDuration() time.Duration {
	if t == ContentTypeSeason {
		return 336 * time.Hour
	}
	return 48 * time.Hour
}

// RentalStatus is the lifecycle state of a rental.
type RentalStatus string

const (
	RentalStatusActive  RentalStatus = "active"
	RentalStatusExpired RentalStatus = "expired"
)

// Rental is a time-bounded entitlement. At most one active, non-expired
// rental may exist per (user, content id, content type).
type Rental struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	ContentID   uuid.UUID    `json:"content_id"`
	ContentType ContentType  `json:"content_type"`
	PricePaid   int64        `json:"price_paid"`
	PaymentID   uuid.UUID    `json:"payment_id"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Status      RentalStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsActive reports whether the rental grants access at instant now.
func (r *Rental) IsActive(now time.Time) bool {
	return r.Status == RentalStatusActive && !r.ExpiresAt.Before(now)
}

// Purchase is a permanent entitlement. Duplicate purchases for the same
// (user, content) are rejected upstream before money moves.
type Purchase struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	ContentID   uuid.UUID   `json:"content_id"`
	ContentType ContentType `json:"content_type"`
	PricePaid   int64       `json:"price_paid"`
	PaymentID   uuid.UUID   `json:"payment_id"`
	CreatedAt   time.Time   `json:"created_at"`
}

// AccessType tells a caller which entitlement granted access.
type AccessType string

const (
	AccessTypePurchase AccessType = "purchase"
	AccessTypeRental   AccessType = "rental"
)

// Access is the entitlement resolver's answer. When both a purchase and a
// rental exist, the purchase wins the reported type (permanent beats
// time-bounded) though either alone suffices for HasAccess.
type Access struct {
	HasAccess  bool       `json:"has_access"`
	AccessType AccessType `json:"access_type,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
