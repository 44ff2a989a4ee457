package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's spendable balance in minor currency units.
// The balance is only ever changed through the ledger primitive; the
// invariant balance >= 0 is enforced under the wallet row lock.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionType is the kind of ledger entry.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeRefund TransactionType = "refund"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeCredit || t == TransactionTypeDebit || t == TransactionTypeRefund
}

// WalletTransaction is an immutable, append-only ledger entry. BalanceAfter
// snapshots the wallet balance the entry produced, so the ledger always
// reconciles to the current balance.
type WalletTransaction struct {
	ID           uuid.UUID       `json:"id"`
	WalletID     uuid.UUID       `json:"wallet_id"`
	Amount       int64           `json:"amount"`
	Type         TransactionType `json:"type"`
	Description  string          `json:"description"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
	BalanceAfter int64           `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}
