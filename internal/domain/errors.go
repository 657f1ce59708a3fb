package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAccessDenied         = errors.New("access denied")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAccountBlocked       = errors.New("account blocked")
	ErrAccountClosed        = errors.New("account closed")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrNoPendingTransfer    = errors.New("no pending transfer")
	ErrAuthorizationExpired = errors.New("verification code expired")
	ErrAuthorizationInvalid = errors.New("verification code invalid")
	ErrTransferBlocked      = errors.New("transfer blocked after repeated invalid codes")
	ErrTransferTerminal     = errors.New("transfer already in terminal state")
	ErrInvalidTransferState = errors.New("invalid transfer state")
	ErrDispatchFailed       = errors.New("verification code dispatch failed")
	ErrConcurrencyConflict  = errors.New("concurrent modification conflict")
)
