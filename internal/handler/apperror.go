package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrBankingAccess    = &AppError{http.StatusForbidden, "BANKING_ACCESS_DENIED", "Banking features are not available for this user"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrAccessDenied     = &AppError{http.StatusForbidden, "ACCESS_DENIED", "Resource does not belong to the current user"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient amount available for this transfer"}
	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive with at most 2 decimal places"}
	ErrAccountBlocked      = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_BLOCKED", "Account is blocked"}
	ErrAccountClosed       = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_CLOSED", "Account is closed"}
	ErrCurrencyMismatch    = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Beneficiary currency does not match the source account"}
	ErrNoPendingTransfer   = &AppError{http.StatusConflict, "NO_PENDING_TRANSFER", "There is no transfer awaiting confirmation"}
	ErrCodeExpired         = &AppError{http.StatusGone, "CODE_EXPIRED", "The verification code has expired, please start again"}
	ErrCodeInvalid         = &AppError{http.StatusUnprocessableEntity, "CODE_INVALID", "The verification code is incorrect"}
	ErrCodeStillValid      = &AppError{http.StatusConflict, "CODE_STILL_VALID", "The current verification code is still valid"}
	ErrTransferBlocked     = &AppError{http.StatusLocked, "TRANSFER_BLOCKED", "Transfer is blocked after too many incorrect codes"}
	ErrTransferTerminal    = &AppError{http.StatusConflict, "TRANSFER_TERMINAL", "Transfer is already completed or cancelled"}
	ErrDispatchFailed      = &AppError{http.StatusServiceUnavailable, "CODE_DISPATCH_FAILED", "The verification code could not be sent, please retry"}
	ErrConcurrencyConflict = &AppError{http.StatusConflict, "CONCURRENCY_CONFLICT", "Resource was modified concurrently, please retry"}

	ErrInvalidIdempotencyKey = &AppError{http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency-Key must be at most 128 characters"}
	ErrIdempotencyKeyReused  = &AppError{http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "Idempotency-Key was already used with a different request"}
)
