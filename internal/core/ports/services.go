package ports

import (
	"context"
	"time"

	"vidpay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentMethod selects the rail a payment intake request uses.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodCard   PaymentMethod = "card"
)

// PaymentRequest holds validated input for the payment processor.
type PaymentRequest struct {
	UserID         uuid.UUID
	Amount         int64 // minor currency units
	Currency       string
	Purpose        domain.Purpose
	Method         PaymentMethod
	Email          string
	Metadata       domain.PaymentMetadata
	IdempotencyKey string // optional; empty means none supplied
	ClientIP       string
}

// PaymentResult is what the intake endpoint returns.
type PaymentResult struct {
	Payment             *domain.Payment `json:"payment"`
	CheckoutURL         string          `json:"checkout_url,omitempty"`
	WalletTransactionID *uuid.UUID      `json:"wallet_transaction_id,omitempty"`
	// Replayed is true when an idempotency key matched an existing payment
	// and no new work was performed.
	Replayed bool `json:"replayed,omitempty"`
}

// PaymentService is the payment processor: one call, one payment attempt.
type PaymentService interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	// GetPayment returns a payment owned by userID, or not-found.
	GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error)
	// VerifyPayment asks the gateway for the authoritative state of a pending
	// payment and completes or fails it accordingly. Safe to call repeatedly;
	// terminal payments are returned as-is.
	VerifyPayment(ctx context.Context, providerRef string) (*domain.Payment, error)
	// CompleteByProviderRef transitions a gateway payment to completed and
	// runs fulfillment in the same database transaction. Already-terminal
	// payments are a no-op; this is the terminal-state guard webhook replays
	// rely on. authorizationCode, when present, is encrypted and stored for
	// charge reuse.
	CompleteByProviderRef(ctx context.Context, providerRef, authorizationCode string) (*domain.Payment, error)
	// FailByProviderRef transitions a gateway payment to failed with the
	// gateway-supplied reason. No-op when already terminal.
	FailByProviderRef(ctx context.Context, providerRef, reason string) (*domain.Payment, error)
}

// LedgerRequest describes one atomic balance mutation.
type LedgerRequest struct {
	WalletID    uuid.UUID
	Amount      int64 // always positive; Type picks the direction
	Type        domain.TransactionType
	Description string
	PaymentID   *uuid.UUID
}

// WalletLedger is the single atomic balance mutation primitive. The balance
// check, the balance write and the ledger append all happen under the wallet
// row lock inside the caller's transaction: both or neither.
type WalletLedger interface {
	ApplyTransaction(ctx context.Context, tx pgx.Tx, req LedgerRequest) (*domain.WalletTransaction, error)
}

// WalletService is the read side of the wallet: balance and statement.
type WalletService interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// GetStatement returns one page of ledger entries, newest first, plus the
	// total entry count.
	GetStatement(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.WalletTransaction, int64, error)
}

// FulfillmentService grants the entitlement (or credits the wallet) after a
// payment is confirmed. Called exactly once per payment, inside the same
// database transaction that marks the payment completed.
type FulfillmentService interface {
	Fulfill(ctx context.Context, tx pgx.Tx, p *domain.Payment) error
}

// EntitlementService resolves whether a user currently holds access to a
// piece of content.
type EntitlementService interface {
	HasAccess(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType) (*domain.Access, error)
}

// WebhookService handles asynchronous gateway callbacks.
type WebhookService interface {
	// HandleEvent verifies, dedupes, logs and dispatches one raw delivery.
	// signature is the value of the provider signature header; rawBody is the
	// exact bytes received.
	HandleEvent(ctx context.Context, rawBody []byte, signature, sourceIP string) error
}

// SignatureService verifies provider webhook signatures (HMAC over the raw
// request body).
type SignatureService interface {
	Sign(payload []byte) string
	Verify(payload []byte, signature string) bool
}

// EncryptionService protects sensitive payloads at rest (AES-256-GCM).
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// TokenService validates bearer tokens minted by the external auth provider.
type TokenService interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed, verified token claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// GatewayInitRequest is the outbound "initialize transaction" call.
type GatewayInitRequest struct {
	Reference string
	Email     string
	Amount    int64 // minor currency units
	Currency  string
	Metadata  domain.PaymentMetadata
}

// GatewayInitResponse carries the redirect the client completes checkout at.
type GatewayInitResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// GatewayCharge is the gateway's authoritative view of one charge.
type GatewayCharge struct {
	Reference         string
	Status            string // "success", "failed", "abandoned", ...
	Amount            int64
	Currency          string
	GatewayMessage    string
	AuthorizationCode string // reusable card authorization, may be empty
}

// GatewayClient is the boundary to the external payment gateway. Calls are
// bounded by the client's timeout and can fail or return asynchronously via
// webhook.
type GatewayClient interface {
	InitializeTransaction(ctx context.Context, req GatewayInitRequest) (*GatewayInitResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*GatewayCharge, error)
}

// IdempotencyCache is the redis fast path for idempotency replays. Best
// effort: losing it never affects correctness, only latency.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// WebhookDedupStore tracks processed webhook event identities. Seen is a
// non-mutating peek; Mark is called only after dispatch completes, so a
// crash mid-dispatch leaves the event eligible for retry.
type WebhookDedupStore interface {
	Seen(ctx context.Context, identity string) (bool, error)
	Mark(ctx context.Context, identity string, ttl time.Duration) error
}
