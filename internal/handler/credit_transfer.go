package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/service/transfer"
	"github.com/josh-kwaku/banking-transfers/internal/session"
)

type creditTransferService interface {
	InitiateTransfer(ctx context.Context, sess transfer.Session, subAccountID uuid.UUID, amount decimal.Decimal, user *domain.User) (*transfer.CreditChallenge, error)
	ConfirmCreditTransfer(ctx context.Context, sess transfer.Session, submitted string, user *domain.User) (*transfer.CreditTransferResult, error)
	ClearPendingCreditTransfer(ctx context.Context, sess transfer.Session) error
}

type CreditTransferHandler struct {
	transfers creditTransferService
	sessions  session.Store
}

func NewCreditTransferHandler(transfers creditTransferService, sessions session.Store) *CreditTransferHandler {
	return &CreditTransferHandler{transfers: transfers, sessions: sessions}
}

type initiateCreditTransferRequest struct {
	Amount string `json:"amount"`
}

func (r initiateCreditTransferRequest) Validate() (decimal.Decimal, []FieldError) {
	amount, fe := transfer.ParseAmount(r.Amount)
	if fe != nil {
		return decimal.Zero, []FieldError{*fe}
	}
	return amount, nil
}

type confirmCreditTransferRequest struct {
	Code string `json:"code"`
}

func (r confirmCreditTransferRequest) Validate() []FieldError {
	if strings.TrimSpace(r.Code) == "" {
		return []FieldError{{Field: "code", Code: domain.FieldCodeRequired, Message: "code is required"}}
	}
	return nil
}

type creditChallengeDTO struct {
	SubAccountID uuid.UUID `json:"sub_account_id"`
	Amount       string    `json:"amount"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type creditTransferResultDTO struct {
	DebitTransactionID  uuid.UUID `json:"debit_transaction_id"`
	CreditTransactionID uuid.UUID `json:"credit_transaction_id"`
	Amount              string    `json:"amount"`
	NewBalance          string    `json:"new_balance"`
	RemainingCredit     string    `json:"remaining_credit"`
}

func toCreditTransferResultDTO(res *transfer.CreditTransferResult) creditTransferResultDTO {
	return creditTransferResultDTO{
		DebitTransactionID:  res.Debit.ID,
		CreditTransactionID: res.Credit.ID,
		Amount:              res.Credit.Amount.StringFixed(2),
		NewBalance:          res.NewBalance.StringFixed(2),
		RemainingCredit:     res.RemainingCredit.StringFixed(2),
	}
}

func (h *CreditTransferHandler) scope(r *http.Request) (session.Scope, *AppError) {
	sid, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		return session.Scope{}, ErrInvalidToken
	}
	return session.NewScope(h.sessions, sid), nil
}

// Initiate issues a verification code for a sweep from the sub-account into
// its main account. The code only travels through the dispatcher.
func (h *CreditTransferHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	user, appErr := actingUser(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	sess, appErr := h.scope(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	subAccountID, appErr := pathID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req initiateCreditTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	amount, fields := req.Validate()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	challenge, err := h.transfers.InitiateTransfer(r.Context(), sess, subAccountID, amount, user)
	if err != nil {
		logging.FromContext(r.Context()).Warn("credit transfer initiation failed", "sub_account_id", subAccountID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusAccepted, creditChallengeDTO{
		SubAccountID: challenge.SubAccountID,
		Amount:       challenge.Amount.StringFixed(2),
		ExpiresAt:    challenge.ExpiresAt,
	})
}

func (h *CreditTransferHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	user, appErr := actingUser(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	sess, appErr := h.scope(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req confirmCreditTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.transfers.ConfirmCreditTransfer(r.Context(), sess, strings.TrimSpace(req.Code), user)
	if err != nil {
		logging.FromContext(r.Context()).Warn("credit transfer confirmation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toCreditTransferResultDTO(res))
}

func (h *CreditTransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, appErr := h.scope(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if err := h.transfers.ClearPendingCreditTransfer(r.Context(), sess); err != nil {
		logging.FromContext(r.Context()).Error("clearing pending credit transfer failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
