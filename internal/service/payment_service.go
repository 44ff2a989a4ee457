package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
	"vidpay/internal/metrics"
	"vidpay/internal/validation"
	"vidpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	paymentRepo  ports.PaymentRepository
	walletRepo   ports.WalletRepository
	rentalRepo   ports.RentalRepository
	purchaseRepo ports.PurchaseRepository
	ledger       ports.WalletLedger
	fulfillment  ports.FulfillmentService
	gateway      ports.GatewayClient
	idempCache   ports.IdempotencyCache
	encSvc       ports.EncryptionService
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	walletRepo ports.WalletRepository,
	rentalRepo ports.RentalRepository,
	purchaseRepo ports.PurchaseRepository,
	ledger ports.WalletLedger,
	fulfillment ports.FulfillmentService,
	gateway ports.GatewayClient,
	idempCache ports.IdempotencyCache,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		paymentRepo:  paymentRepo,
		walletRepo:   walletRepo,
		rentalRepo:   rentalRepo,
		purchaseRepo: purchaseRepo,
		ledger:       ledger,
		fulfillment:  fulfillment,
		gateway:      gateway,
		idempCache:   idempCache,
		encSvc:       encSvc,
		transactor:   transactor,
		log:          log,
	}
}

// ProcessPayment runs one payment attempt end to end.
func (s *PaymentServiceImpl) ProcessPayment(ctx context.Context, req ports.PaymentRequest) (*ports.PaymentResult, error) {
	result := validation.PaymentInput{
		Amount:         req.Amount,
		Purpose:        req.Purpose,
		Method:         string(req.Method),
		Email:          req.Email,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	}.Check()
	if !result.Valid {
		return nil, apperror.Validation(result.Error())
	}

	// Idempotency short-circuit: a key that already maps to a payment
	// returns that payment's current state, never a second charge.
	if req.IdempotencyKey != "" {
		if replay, err := s.replayIdempotent(ctx, req.IdempotencyKey); err != nil {
			return nil, err
		} else if replay != nil {
			return replay, nil
		}
	}

	// Entitlement conflicts fail fast, before any money moves.
	if err := s.checkEntitlementConflicts(ctx, req); err != nil {
		return nil, err
	}

	switch req.Method {
	case ports.PaymentMethodWallet:
		return s.processWalletPayment(ctx, req)
	case ports.PaymentMethodCard:
		return s.processGatewayPayment(ctx, req)
	}
	return nil, apperror.Validation(fmt.Sprintf("unsupported payment method %q", req.Method))
}

// GetPayment returns the payment only when it belongs to userID. Ownership
// mismatches read as not-found so payment ids cannot be probed.
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if p == nil || p.UserID != userID {
		return nil, apperror.ErrNotFound("payment")
	}
	return p, nil
}

// replayIdempotent returns the stored result for a seen idempotency key, or
// nil when the key is new. Redis is the fast path; the unique payments
// column is the durable truth.
func (s *PaymentServiceImpl) replayIdempotent(ctx context.Context, key string) (*ports.PaymentResult, error) {
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("idempotency cache read failed, falling through to DB")
	}
	if cached != nil {
		replay := &ports.PaymentResult{}
		if err := json.Unmarshal(cached, replay); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("unmarshal cached result: %w", err))
		}
		replay.Replayed = true
		return replay, nil
	}

	existing, err := s.paymentRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency lookup: %w", err))
	}
	if existing != nil {
		return &ports.PaymentResult{Payment: existing, Replayed: true}, nil
	}
	return nil, nil
}

func (s *PaymentServiceImpl) checkEntitlementConflicts(ctx context.Context, req ports.PaymentRequest) error {
	switch req.Purpose {
	case domain.PurposeRental:
		active, err := s.rentalRepo.FindActive(ctx, req.UserID, req.Metadata.ContentID, req.Metadata.ContentType, time.Now().UTC())
		if err != nil {
			return apperror.InternalError(fmt.Errorf("check active rental: %w", err))
		}
		if active != nil {
			return apperror.ErrActiveRentalExists()
		}
	case domain.PurposePurchase:
		owned, err := s.purchaseRepo.Find(ctx, req.UserID, req.Metadata.ContentID, req.Metadata.ContentType)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("check existing purchase: %w", err))
		}
		if owned != nil {
			return apperror.ErrAlreadyPurchased()
		}
	}
	return nil
}

// processWalletPayment debits the wallet and fulfills in one database
// transaction. The payment row is created first and survives either way: it
// is the single source of truth for what happened.
func (s *PaymentServiceImpl) processWalletPayment(ctx context.Context, req ports.PaymentRequest) (*ports.PaymentResult, error) {
	if req.Purpose == domain.PurposeWalletTopup {
		return nil, apperror.Validation("cannot top up a wallet from itself")
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	// Advisory pre-check: avoids creating a payment row for an obviously
	// underfunded wallet. The ledger re-validates under the row lock.
	if wallet.Balance < req.Amount {
		return nil, apperror.ErrInsufficientFunds(req.Amount - wallet.Balance)
	}

	payment := s.newPayment(req, domain.ProviderWallet, domain.PaymentStatusProcessing, nil)
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}

	walletTxID, err := s.debitAndFulfill(ctx, payment, wallet.ID)
	if err != nil {
		s.markFailed(ctx, payment, err)
		metrics.PaymentsTotal.WithLabelValues(string(payment.Purpose), string(payment.Provider), "failed").Inc()
		return nil, err
	}

	payment.Status = domain.PaymentStatusCompleted
	metrics.PaymentsTotal.WithLabelValues(string(payment.Purpose), string(payment.Provider), "completed").Inc()

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("purpose", string(payment.Purpose)).
		Int64("amount", payment.Amount).
		Msg("wallet payment completed")

	res := &ports.PaymentResult{Payment: payment, WalletTransactionID: walletTxID}
	s.cacheResult(ctx, req.IdempotencyKey, res)
	return res, nil
}

// debitAndFulfill runs the debit, the fulfillment writes and the completed
// transition atomically. Rolling back leaves no trace but the payment row.
func (s *PaymentServiceImpl) debitAndFulfill(ctx context.Context, payment *domain.Payment, walletID uuid.UUID) (*uuid.UUID, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	paymentID := payment.ID
	entry, err := s.ledger.ApplyTransaction(ctx, dbTx, ports.LedgerRequest{
		WalletID:    walletID,
		Amount:      payment.Amount,
		Type:        domain.TransactionTypeDebit,
		Description: fmt.Sprintf("Payment for %s", payment.Purpose),
		PaymentID:   &paymentID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.fulfillment.Fulfill(ctx, dbTx, payment); err != nil {
		return nil, err
	}

	if _, err := s.paymentRepo.UpdateStatus(ctx, dbTx, payment.ID, domain.PaymentStatusCompleted, nil); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete payment: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return &entry.ID, nil
}

// processGatewayPayment creates the payment, asks the gateway for a
// checkout URL and defers fulfillment to the webhook (or verify) path.
func (s *PaymentServiceImpl) processGatewayPayment(ctx context.Context, req ports.PaymentRequest) (*ports.PaymentResult, error) {
	reference := mintReference(req.Purpose, req.UserID)
	payment := s.newPayment(req, domain.ProviderGateway, domain.PaymentStatusInitiated, &reference)
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}

	init, err := s.gateway.InitializeTransaction(ctx, ports.GatewayInitRequest{
		Reference: reference,
		Email:     req.Email,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
	})
	if err != nil {
		// Timeout or gateway failure: the payment stays initiated. No money
		// moved, no entitlement granted; safe to retry with a new attempt.
		s.log.Error().Err(err).
			Str("payment_id", payment.ID.String()).
			Str("reference", reference).
			Msg("gateway initialize failed")
		metrics.PaymentsTotal.WithLabelValues(string(payment.Purpose), string(payment.Provider), "initiate_failed").Inc()
		return nil, apperror.Upstream(err)
	}

	// The provider echoes the reference back and may normalize it. Webhooks
	// and verification look the payment up by what the provider carries, so
	// the stored ref must follow the echo.
	if init.Reference != "" && init.Reference != reference {
		if err := s.paymentRepo.SetProviderRef(ctx, payment.ID, init.Reference); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("store provider reference: %w", err))
		}
		reference = init.Reference
		payment.ProviderRef = &reference
	}

	if _, err := s.paymentRepo.UpdateStatus(ctx, nil, payment.ID, domain.PaymentStatusPending, nil); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark pending: %w", err))
	}
	payment.Status = domain.PaymentStatusPending
	metrics.PaymentsTotal.WithLabelValues(string(payment.Purpose), string(payment.Provider), "pending").Inc()

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("reference", reference).
		Msg("gateway checkout issued")

	res := &ports.PaymentResult{Payment: payment, CheckoutURL: init.AuthorizationURL}
	s.cacheResult(ctx, req.IdempotencyKey, res)
	return res, nil
}

// VerifyPayment polls the gateway for the authoritative charge state and
// applies it. Bounded by the gateway client's timeout; callers poll a fixed
// number of times and stop on a terminal state.
func (s *PaymentServiceImpl) VerifyPayment(ctx context.Context, providerRef string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByProviderRef(ctx, providerRef)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if payment.IsTerminal() {
		return payment, nil
	}

	charge, err := s.gateway.VerifyTransaction(ctx, providerRef)
	if err != nil {
		return nil, apperror.Upstream(err)
	}

	switch charge.Status {
	case "success":
		return s.CompleteByProviderRef(ctx, providerRef, charge.AuthorizationCode)
	case "failed", "abandoned", "reversed":
		return s.FailByProviderRef(ctx, providerRef, charge.GatewayMessage)
	default:
		// Still pending at the gateway; report the current state unchanged.
		return payment, nil
	}
}

// CompleteByProviderRef is the single completion path shared by the webhook
// handler and verification polling. The payment row is locked, the terminal
// guard makes replays no-ops, and fulfillment commits atomically with the
// completed transition.
func (s *PaymentServiceImpl) CompleteByProviderRef(ctx context.Context, providerRef, authorizationCode string) (*domain.Payment, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payment, err := s.paymentRepo.GetByProviderRefForUpdate(ctx, dbTx, providerRef)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if payment.IsTerminal() {
		return payment, nil
	}

	if err := s.fulfillment.Fulfill(ctx, dbTx, payment); err != nil {
		// Roll back the entitlement writes, then record the failure. Money
		// was taken upstream; the failed payment row flags it for manual
		// reconciliation.
		_ = dbTx.Rollback(ctx)
		s.markFailed(ctx, payment, err)
		metrics.PaymentsTotal.WithLabelValues(string(payment.Purpose), string(payment.Provider), "failed").Inc()
		return nil, err
	}

	transitioned, err := s.paymentRepo.UpdateStatus(ctx, dbTx, payment.ID, domain.PaymentStatusCompleted, nil)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete payment: %w", err))
	}
	if !transitioned {
		// Lost the race to another deliverer; nothing more to do.
		return payment, nil
	}

	if authorizationCode != "" {
		enc, err := s.encSvc.Encrypt(authorizationCode)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("encrypt authorization: %w", err))
		}
		if err := s.paymentRepo.SetAuthorization(ctx, dbTx, payment.ID, enc); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("store authorization: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	payment.Status = domain.PaymentStatusCompleted
	metrics.PaymentsTotal.WithLabelValues(string(payment.Purpose), string(payment.Provider), "completed").Inc()

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("reference", providerRef).
		Str("purpose", string(payment.Purpose)).
		Int64("amount", payment.Amount).
		Msg("gateway payment completed")
	return payment, nil
}

// FailByProviderRef records a gateway-reported failure. Terminal payments
// are untouched.
func (s *PaymentServiceImpl) FailByProviderRef(ctx context.Context, providerRef, reason string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByProviderRef(ctx, providerRef)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if payment.IsTerminal() {
		return payment, nil
	}

	transitioned, err := s.paymentRepo.UpdateStatus(ctx, nil, payment.ID, domain.PaymentStatusFailed, &reason)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fail payment: %w", err))
	}
	if transitioned {
		payment.Status = domain.PaymentStatusFailed
		payment.FailureReason = &reason
		metrics.PaymentsTotal.WithLabelValues(string(payment.Purpose), string(payment.Provider), "failed").Inc()
		s.log.Warn().
			Str("payment_id", payment.ID.String()).
			Str("reference", providerRef).
			Str("reason", reason).
			Msg("gateway payment failed")
	}
	return payment, nil
}

func (s *PaymentServiceImpl) newPayment(req ports.PaymentRequest, provider domain.Provider, status domain.PaymentStatus, providerRef *string) *domain.Payment {
	now := time.Now().UTC()
	var idempKey *string
	if req.IdempotencyKey != "" {
		k := req.IdempotencyKey
		idempKey = &k
	}
	return &domain.Payment{
		ID:             uuid.New(),
		UserID:         req.UserID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Purpose:        req.Purpose,
		Provider:       provider,
		ProviderRef:    providerRef,
		Status:         status,
		Metadata:       req.Metadata,
		IdempotencyKey: idempKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// markFailed records a failure on the payment row outside any transaction.
// The row is the audit trail even when the money never moved.
func (s *PaymentServiceImpl) markFailed(ctx context.Context, payment *domain.Payment, cause error) {
	reason := cause.Error()
	if _, err := s.paymentRepo.UpdateStatus(ctx, nil, payment.ID, domain.PaymentStatusFailed, &reason); err != nil {
		s.log.Error().Err(err).
			Str("payment_id", payment.ID.String()).
			Msg("failed to record payment failure")
		return
	}
	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = &reason
}

// cacheResult stores the idempotency replay payload, best effort.
func (s *PaymentServiceImpl) cacheResult(ctx context.Context, key string, res *ports.PaymentResult) {
	if key == "" {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.idempCache.Set(ctx, key, payload, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotent result")
	}
}

// mintReference builds the gateway reference: purpose_userid_timestamp_random.
func mintReference(purpose domain.Purpose, userID uuid.UUID) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%s_%d_%s", purpose, userID.String()[:8], time.Now().UnixMilli(), hex.EncodeToString(buf))
}
