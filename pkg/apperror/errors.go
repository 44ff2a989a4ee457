package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses. The wrapped
// internal error is logged server-side and never leaks to the client.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount(message string) *AppError {
	return New("VAL_002", message, http.StatusBadRequest)
}

func ErrInvalidIdempotencyKey() *AppError {
	return New("VAL_003", "Idempotency key must be between 10 and 255 characters", http.StatusBadRequest)
}

// ---- Payment business logic (PAY) ----

// ErrInsufficientFunds reports a wallet balance too low by deficit minor units.
func ErrInsufficientFunds(deficit int64) *AppError {
	return New("PAY_001", fmt.Sprintf("Insufficient wallet balance: short %d", deficit), http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Conflicts (CON) ----

func ErrActiveRentalExists() *AppError {
	return New("CON_001", "An active rental already exists for this content", http.StatusConflict)
}

func ErrAlreadyPurchased() *AppError {
	return New("CON_002", "Content already purchased", http.StatusConflict)
}

// ---- Authentication & signatures (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("AUTH_002", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Rate limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Upstream gateway (UPS) ----

// Upstream hides gateway failure detail behind a generic client message; the
// wrapped error carries the raw response for server logs.
func Upstream(err error) *AppError {
	return Wrap("UPS_001", "Payment processing failed", http.StatusInternalServerError, err)
}

// ---- Fulfillment (FUL) ----

// Fulfillment marks a post-charge entitlement write failure. The payment is
// forced to failed and flagged for manual reconciliation by the caller.
func Fulfillment(err error) *AppError {
	return Wrap("FUL_001", "Payment processing failed", http.StatusInternalServerError, err)
}

// ---- System (SYS) ----

func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
