// Package validation holds the pure, side-effect-free input checks shared
// by the HTTP boundary and the payment processor.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"vidpay/internal/core/domain"
)

const (
	// MinAmount and MaxAmount bound payment amounts in minor currency units.
	MinAmount int64 = 100
	MaxAmount int64 = 10_000_000

	// Idempotency key length bounds.
	MinIdempotencyKeyLen = 10
	MaxIdempotencyKeyLen = 255
)

// RFC-lite: local@domain.tld with no whitespace. Full RFC 5322 parsing is
// the auth provider's problem; this only rejects obvious garbage.
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Result aggregates validation errors. Valid is true when Errors is empty.
type Result struct {
	Valid  bool
	Errors []string
}

func (r *Result) addf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Error flattens the collected errors into one message.
func (r *Result) Error() string {
	return strings.Join(r.Errors, "; ")
}

// Amount checks that amount is within the allowed bounds.
func Amount(amount int64) error {
	if amount < MinAmount {
		return fmt.Errorf("amount must be at least %d minor units, got %d", MinAmount, amount)
	}
	if amount > MaxAmount {
		return fmt.Errorf("amount must not exceed %d minor units, got %d", MaxAmount, amount)
	}
	return nil
}

// Email checks the RFC-lite shape of an email address.
func Email(email string) error {
	if !emailRe.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// IdempotencyKey checks the shape of a client-supplied idempotency key.
// An empty key is allowed: it means none was supplied.
func IdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if len(key) < MinIdempotencyKeyLen || len(key) > MaxIdempotencyKeyLen {
		return fmt.Errorf("idempotency key length must be between %d and %d", MinIdempotencyKeyLen, MaxIdempotencyKeyLen)
	}
	return nil
}

// PaymentInput validates a complete payment intake request and returns the
// aggregated result. No side effects.
type PaymentInput struct {
	Amount         int64
	Purpose        domain.Purpose
	Method         string
	Email          string
	Metadata       domain.PaymentMetadata
	IdempotencyKey string
}

// Check runs every rule and aggregates failures into one Result.
func (in PaymentInput) Check() Result {
	var r Result

	if err := Amount(in.Amount); err != nil {
		r.addf("%v", err)
	}
	if !in.Purpose.IsValid() {
		r.addf("purpose must be one of %v", domain.Purposes)
	} else if err := in.Metadata.ValidateFor(in.Purpose); err != nil {
		r.addf("%v", err)
	}
	switch in.Method {
	case "wallet":
	case "card":
		if err := Email(in.Email); err != nil {
			r.addf("email: %v", err)
		}
	default:
		r.addf("payment_method must be wallet or card, got %q", in.Method)
	}
	if err := IdempotencyKey(in.IdempotencyKey); err != nil {
		r.addf("%v", err)
	}

	r.Valid = len(r.Errors) == 0
	return r
}
