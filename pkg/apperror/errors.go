package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"error_code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"` // Wrapped internal error (not exposed to client)
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

// Is matches another *AppError by code, so errors.Is(err, ErrCardNotFound())
// works across wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
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

// WithDetails returns a copy of e carrying client-visible details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// ---- Validation (VAL) ----

// Validation returns an InvalidInput error with the given message.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return Validation("amount must be a positive integer")
}

func ErrBalanceLimit() *AppError {
	return Validation("top-up would exceed the maximum card balance")
}

func ErrInvalidTagID() *AppError {
	return Validation("invalid tag identifier")
}

// ---- Cards (CARD) ----

func ErrCardNotFound() *AppError {
	return New("CARD_001", "Card not found", http.StatusNotFound)
}

func ErrDuplicateCard() *AppError {
	return New("CARD_002", "Card already registered", http.StatusConflict)
}

func ErrCardInactive() *AppError {
	return New("CARD_003", "Card is inactive", http.StatusForbidden)
}

// ---- Payment Business Logic (PAY) ----

// ErrInsufficientBalance carries the current balance and the amount needed so
// callers can offer a top-up.
func ErrInsufficientBalance(current, needed int64) *AppError {
	return New("PAY_001", "Insufficient card balance", http.StatusPaymentRequired).
		WithDetails(map[string]any{
			"current_balance": current,
			"needed":          needed,
		})
}

// ErrRequestInProgress is returned when another request with the same
// reference id has not finished yet.
func ErrRequestInProgress() *AppError {
	return New("PAY_002", "Request with this reference id is already in progress", http.StatusConflict)
}

// ---- Shops (SHOP) ----

func ErrShopNotFound() *AppError {
	return New("SHOP_001", "Shop not found or inactive", http.StatusNotFound)
}

// ---- Tag reads (TAP) ----

func ErrTapSuppressed(reason string) *AppError {
	return New("TAP_001", "Tag read suppressed", http.StatusConflict).
		WithDetails(map[string]any{"reason": reason})
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// ErrStore reports a backing store failure. The operation had no effect.
func ErrStore(err error) *AppError {
	return Wrap("SYS_001", "Backing store unavailable", http.StatusServiceUnavailable, err)
}

// ErrTimeout reports that the caller stopped waiting. A mutation already
// started still runs to completion.
func ErrTimeout(err error) *AppError {
	return Wrap("SYS_003", "Operation timed out", http.StatusGatewayTimeout, err)
}

// InternalError wraps an unexpected internal error.
func InternalError(err error) *AppError {
	return Wrap("SYS_002", "Internal server error", http.StatusInternalServerError, err)
}
