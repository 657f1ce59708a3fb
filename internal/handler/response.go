package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError = domain.FieldError

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// RespondDomainError maps service errors onto the API error catalogue. A
// rejected code that also tripped the block reports the block. Insufficient
// funds is reported as such whenever it is detected, with any field errors
// attached as details.
func RespondDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	hasFields := errors.As(err, &verr)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		var details any
		if hasFields {
			details = verr.Fields
		}
		RespondAppError(w, ErrInsufficientFunds, details)
		return
	}
	if hasFields {
		RespondValidationError(w, verr.Fields)
		return
	}

	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrAccessDenied):
		appErr = ErrAccessDenied
	case errors.Is(err, domain.ErrTransferBlocked):
		appErr = ErrTransferBlocked
	case errors.Is(err, domain.ErrAuthorizationExpired):
		appErr = ErrCodeExpired
	case errors.Is(err, domain.ErrAuthorizationInvalid):
		appErr = ErrCodeInvalid
	case errors.Is(err, domain.ErrNoPendingTransfer):
		appErr = ErrNoPendingTransfer
	case errors.Is(err, domain.ErrTransferTerminal):
		appErr = ErrTransferTerminal
	case errors.Is(err, domain.ErrInvalidTransferState):
		appErr = ErrCodeStillValid
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrAccountBlocked):
		appErr = ErrAccountBlocked
	case errors.Is(err, domain.ErrAccountClosed):
		appErr = ErrAccountClosed
	case errors.Is(err, domain.ErrCurrencyMismatch):
		appErr = ErrCurrencyMismatch
	case errors.Is(err, domain.ErrDispatchFailed):
		appErr = ErrDispatchFailed
	case errors.Is(err, domain.ErrConcurrencyConflict):
		appErr = ErrConcurrencyConflict
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
