package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes into the categories callers branch on.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidSignature  Kind = "invalid_signature"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindUnauthorized      Kind = "unauthorized"
	KindInternal          Kind = "internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	Kind       Kind   `json:"-"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
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
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Kind:       kind,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Kind:       kind,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Validation (VAL) ----

// Validation returns a generic bad-input error.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrBelowMinimumWithdrawal(minimum string) *AppError {
	return New(KindValidation, "VAL_003", fmt.Sprintf("Amount is below the minimum withdrawal of %s", minimum), http.StatusUnprocessableEntity)
}

func ErrInvalidPolicy(err error) *AppError {
	return Wrap(KindInternal, "VAL_004", "Commission policy is malformed", http.StatusInternalServerError, err)
}

func ErrPayloadTooLarge() *AppError {
	return New(KindValidation, "VAL_005", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- Not found (NF) ----

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Ledger business rules (LED) ----

func ErrInsufficientFunds() *AppError {
	return New(KindInsufficientFunds, "LED_001", "Insufficient available balance", http.StatusUnprocessableEntity)
}

func ErrDuplicateReference() *AppError {
	return New(KindConflict, "LED_002", "A transaction with this reference already exists", http.StatusConflict)
}

func ErrAlreadyDelivered() *AppError {
	return New(KindConflict, "LED_003", "Order has already been delivered", http.StatusConflict)
}

func ErrCommissionAlreadySettled() *AppError {
	return New(KindConflict, "LED_004", "Order commission has already been deposited", http.StatusConflict)
}

func ErrPaymentNotApproved() *AppError {
	return New(KindConflict, "LED_005", "Order payment has not been approved", http.StatusConflict)
}

func ErrNoCommission() *AppError {
	return New(KindValidation, "LED_006", "Order has no commission to settle", http.StatusUnprocessableEntity)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New(KindConflict, "LED_007", fmt.Sprintf("Cannot move order from %s to %s", from, to), http.StatusConflict)
}

func ErrMovementNotReviewable() *AppError {
	return New(KindConflict, "LED_008", "Movement is not pending review", http.StatusConflict)
}

func ErrConcurrentModification() *AppError {
	return New(KindConflict, "LED_009", "Wallet was modified concurrently, retry the request", http.StatusConflict)
}

func ErrWalletInactive() *AppError {
	return New(KindConflict, "LED_010", "Wallet is deactivated", http.StatusForbidden)
}

func ErrSaleAlreadyProcessed() *AppError {
	return New(KindConflict, "LED_011", "Sale has already been credited", http.StatusConflict)
}

// ---- Security (SEC) ----

func ErrInvalidSignature() *AppError {
	return New(KindInvalidSignature, "SEC_001", "Invalid webhook signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(KindUnauthorized, "SEC_002", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(KindUnauthorized, "SEC_003", "Insufficient permissions", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindConflict, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrGatewayFailure(err error) *AppError {
	return Wrap(KindInternal, "SYS_002", "Payment gateway failure", http.StatusBadGateway, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(KindInternal, "SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
