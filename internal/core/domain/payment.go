package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Purpose classifies what a payment buys.
type Purpose string

const (
	PurposeWalletTopup  Purpose = "wallet_topup"
	PurposeRental       Purpose = "rental"
	PurposePurchase     Purpose = "purchase"
	PurposeSubscription Purpose = "subscription"
)

// Purposes lists every accepted purpose value.
var Purposes = []Purpose{PurposeWalletTopup, PurposeRental, PurposePurchase, PurposeSubscription}

// IsValid reports whether p is a known purpose.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeWalletTopup, PurposeRental, PurposePurchase, PurposeSubscription:
		return true
	}
	return false
}

// Provider identifies which rail moved the money.
type Provider string

const (
	ProviderWallet  Provider = "wallet"
	ProviderGateway Provider = "gateway"
)

// PaymentStatus is the lifecycle state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "initiated"
	PaymentStatusProcessing PaymentStatus = "processing" // wallet-funded, debit in flight
	PaymentStatusPending    PaymentStatus = "pending"    // gateway redirect issued
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// IsTerminal returns true once the payment can no longer change state.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// paymentTransitions encodes the legal state machine edges.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitiated:  {PaymentStatusProcessing, PaymentStatusPending, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusPending:    {PaymentStatusCompleted, PaymentStatusFailed},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMetadata is the closed set of purpose-specific payload fields.
// Only the fields relevant to the payment's purpose are set; ValidateFor
// enforces that at the boundary before anything is persisted.
type PaymentMetadata struct {
	ContentID           uuid.UUID   `json:"content_id,omitempty"`
	ContentType         ContentType `json:"content_type,omitempty"`
	RentalDurationHours int         `json:"rental_duration_hours,omitempty"`
}

// maxRentalDurationHours caps explicit rental duration overrides at one year.
const maxRentalDurationHours = 8760

// ValidateFor checks the metadata against the payment purpose.
func (m PaymentMetadata) ValidateFor(p Purpose) error {
	switch p {
	case PurposeWalletTopup, PurposeSubscription:
		return nil
	case PurposeRental:
		if m.ContentID == uuid.Nil {
			return fmt.Errorf("rental requires content_id")
		}
		if !m.ContentType.IsValid() {
			return fmt.Errorf("rental requires a valid content_type, got %q", m.ContentType)
		}
		if m.RentalDurationHours < 0 || m.RentalDurationHours > maxRentalDurationHours {
			return fmt.Errorf("rental_duration_hours out of range: %d", m.RentalDurationHours)
		}
		return nil
	case PurposePurchase:
		if m.ContentID == uuid.Nil {
			return fmt.Errorf("purchase requires content_id")
		}
		if !m.ContentType.IsValid() {
			return fmt.Errorf("purchase requires a valid content_type, got %q", m.ContentType)
		}
		return nil
	}
	return fmt.Errorf("unknown purpose %q", p)
}

// Payment is one attempt to move money for a purpose. Rows are never
// deleted; they are the audit trail for reconciliation.
type Payment struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	Amount           int64           `json:"amount"` // minor currency units
	Currency         string          `json:"currency"`
	Purpose          Purpose         `json:"purpose"`
	Provider         Provider        `json:"provider"`
	ProviderRef      *string         `json:"provider_ref,omitempty"`
	Status           PaymentStatus   `json:"status"`
	Metadata         PaymentMetadata `json:"metadata"`
	IdempotencyKey   *string         `json:"idempotency_key,omitempty"`
	AuthorizationEnc *string         `json:"-"` // AES-256-GCM encrypted reusable card authorization
	FailureReason    *string         `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the payment reached a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status.IsTerminal()
}
