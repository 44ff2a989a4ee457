package dto

import (
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
)

// PaymentMetadataRequest carries the purpose-specific payment fields.
type PaymentMetadataRequest struct {
	ContentID           string `json:"content_id,omitempty" binding:"omitempty,uuid"`
	ContentType         string `json:"content_type,omitempty" binding:"omitempty,content_type"`
	RentalDurationHours int    `json:"rental_duration_hours,omitempty" binding:"omitempty,min=1,max=8760"`
}

// PaymentRequest is the request body for payment intake. Deeper rules
// (amount bounds, purpose/metadata coherence) live in the validation
// package; binding only rejects structurally broken input.
type PaymentRequest struct {
	Amount        int64                  `json:"amount" binding:"required"`
	Currency      string                 `json:"currency" binding:"required,len=3"`
	Purpose       string                 `json:"purpose" binding:"required"`
	PaymentMethod string                 `json:"payment_method" binding:"required"`
	Email         string                 `json:"email,omitempty"`
	Metadata      PaymentMetadataRequest `json:"metadata"`
}

// PaymentResponse is the wire shape of a payment row.
type PaymentResponse struct {
	ID            string  `json:"id"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Purpose       string  `json:"purpose"`
	Provider      string  `json:"provider"`
	ProviderRef   *string `json:"provider_ref,omitempty"`
	Status        string  `json:"status"`
	FailureReason *string `json:"failure_reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// PaymentResultResponse is the intake endpoint's response body.
type PaymentResultResponse struct {
	Payment             PaymentResponse `json:"payment"`
	CheckoutURL         string          `json:"checkout_url,omitempty"`
	WalletTransactionID *string         `json:"wallet_transaction_id,omitempty"`
	Replayed            bool            `json:"replayed,omitempty"`
}

// WalletResponse is the balance query response.
type WalletResponse struct {
	WalletID  string `json:"wallet_id"`
	Balance   int64  `json:"balance"`
	UpdatedAt string `json:"updated_at"`
}

// StatementEntryResponse is one ledger entry in a wallet statement.
type StatementEntryResponse struct {
	ID           string  `json:"id"`
	Amount       int64   `json:"amount"`
	Type         string  `json:"type"`
	Description  string  `json:"description"`
	PaymentID    *string `json:"payment_id,omitempty"`
	BalanceAfter int64   `json:"balance_after"`
	CreatedAt    string  `json:"created_at"`
}

// StatementResponse wraps a paginated wallet statement.
type StatementResponse struct {
	Items      []StatementEntryResponse `json:"items"`
	Total      int64                    `json:"total"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalPages int                      `json:"total_pages"`
}

// EntitlementResponse is the access check response.
type EntitlementResponse struct {
	HasAccess  bool    `json:"has_access"`
	AccessType string  `json:"access_type,omitempty"`
	ExpiresAt  *string `json:"expires_at,omitempty"`
}

// ToPaymentResponse converts a domain payment to its wire shape.
func ToPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID.String(),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Purpose:       string(p.Purpose),
		Provider:      string(p.Provider),
		ProviderRef:   p.ProviderRef,
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	if p.CompletedAt != nil {
		s := p.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// ToPaymentResultResponse converts an intake result to its wire shape.
func ToPaymentResultResponse(r *ports.PaymentResult) PaymentResultResponse {
	resp := PaymentResultResponse{
		Payment:     ToPaymentResponse(r.Payment),
		CheckoutURL: r.CheckoutURL,
		Replayed:    r.Replayed,
	}
	if r.WalletTransactionID != nil {
		s := r.WalletTransactionID.String()
		resp.WalletTransactionID = &s
	}
	return resp
}

// ToStatementEntryResponse converts a ledger entry to its wire shape.
func ToStatementEntryResponse(t domain.WalletTransaction) StatementEntryResponse {
	resp := StatementEntryResponse{
		ID:           t.ID.String(),
		Amount:       t.Amount,
		Type:         string(t.Type),
		Description:  t.Description,
		BalanceAfter: t.BalanceAfter,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
	}
	if t.PaymentID != nil {
		s := t.PaymentID.String()
		resp.PaymentID = &s
	}
	return resp
}

// ToEntitlementResponse converts an access decision to its wire shape.
func ToEntitlementResponse(a *domain.Access) EntitlementResponse {
	resp := EntitlementResponse{
		HasAccess:  a.HasAccess,
		AccessType: string(a.AccessType),
	}
	if a.ExpiresAt != nil {
		s := a.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}
