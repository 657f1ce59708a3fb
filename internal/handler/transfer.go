package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/service/transfer"
)

type beneficiaryTransferService interface {
	InitiateBeneficiaryTransfer(ctx context.Context, user *domain.User, req transfer.BeneficiaryTransferRequest) (*domain.Transfer, error)
	GetTransfer(ctx context.Context, user *domain.User, transferID uuid.UUID) (*domain.Transfer, error)
	ValidateTransferCode(ctx context.Context, user *domain.User, transferID uuid.UUID, submitted string) (*domain.Transfer, error)
	ReissueTransferCode(ctx context.Context, user *domain.User, transferID uuid.UUID) (*domain.Transfer, error)
	CancelTransfer(ctx context.Context, user *domain.User, transferID uuid.UUID) (*domain.Transfer, error)
}

type TransferHandler struct {
	transfers beneficiaryTransferService
	now       func() time.Time
}

func NewTransferHandler(transfers beneficiaryTransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers, now: time.Now}
}

type createTransferRequest struct {
	SourceAccountID string `json:"source_account_id"`
	BeneficiaryID   string `json:"beneficiary_id"`
	Amount          string `json:"amount"`
	Description     string `json:"description"`
}

func (r createTransferRequest) Validate() (transfer.BeneficiaryTransferRequest, []FieldError) {
	var (
		out  transfer.BeneficiaryTransferRequest
		errs []FieldError
		err  error
	)

	if out.SourceAccountID, err = uuid.Parse(r.SourceAccountID); err != nil {
		errs = append(errs, FieldError{Field: "source_account_id", Code: domain.FieldCodeInvalid, Message: "must be a UUID"})
	}
	if out.BeneficiaryID, err = uuid.Parse(r.BeneficiaryID); err != nil {
		errs = append(errs, FieldError{Field: "beneficiary_id", Code: domain.FieldCodeInvalid, Message: "must be a UUID"})
	}

	amount, fe := transfer.ParseAmount(r.Amount)
	if fe != nil {
		errs = append(errs, *fe)
	}
	out.Amount = amount

	if len(r.Description) > 140 {
		errs = append(errs, FieldError{Field: "description", Code: domain.FieldCodeInvalid, Message: "must be at most 140 characters"})
	}
	out.Description = strings.TrimSpace(r.Description)

	return out, errs
}

type validateCodeRequest struct {
	Code string `json:"code"`
}

type transferDTO struct {
	ID                 uuid.UUID  `json:"id"`
	Status             string     `json:"status"`
	SourceAccountID    uuid.UUID  `json:"source_account_id"`
	BeneficiaryID      uuid.UUID  `json:"beneficiary_id"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	Description        string     `json:"description"`
	RequiredCodes      int        `json:"required_codes"`
	ConsumedCodes      int        `json:"consumed_codes"`
	CodeExpiresAt      *time.Time `json:"code_expires_at,omitempty"`
	Blocked            bool       `json:"blocked"`
	BlockedUntil       *time.Time `json:"blocked_until,omitempty"`
	DebitTransactionID *uuid.UUID `json:"debit_transaction_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

func toTransferDTO(t *domain.Transfer, now time.Time) transferDTO {
	dto := transferDTO{
		ID:                 t.ID,
		Status:             string(t.Status),
		SourceAccountID:    t.SourceAccountID,
		BeneficiaryID:      t.BeneficiaryID,
		Amount:             t.Amount.StringFixed(2),
		Currency:           string(t.Currency),
		Description:        t.Description,
		RequiredCodes:      t.RequiredCodes,
		ConsumedCodes:      t.ConsumedCodes(),
		Blocked:            t.IsAccountBlocked(now),
		DebitTransactionID: t.DebitTransactionID,
		CreatedAt:          t.CreatedAt,
		CompletedAt:        t.CompletedAt,
		CancelledAt:        t.CancelledAt,
	}
	if dto.Blocked {
		dto.BlockedUntil = t.BlockedUntil
	}
	if c := t.GetCurrentCode(now); c != nil && !t.Status.IsTerminal() {
		exp := c.ExpiresAt
		dto.CodeExpiresAt = &exp
	}
	return dto
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, appErr := actingUser(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var body createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	req, fields := body.Validate()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.transfers.InitiateBeneficiaryTransfer(r.Context(), user, req)
	if err != nil {
		logging.FromContext(r.Context()).Warn("beneficiary transfer creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transfers/%s", t.ID))
	RespondSuccess(w, http.StatusCreated, toTransferDTO(t, h.now()))
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, appErr := actingUser(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	id, appErr := pathID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	t, err := h.transfers.GetTransfer(r.Context(), user, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer lookup failed", "transfer_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransferDTO(t, h.now()))
}

func (h *TransferHandler) Validate(w http.ResponseWriter, r *http.Request) {
	user, appErr := actingUser(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	id, appErr := pathID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req validateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		RespondValidationError(w, []FieldError{{Field: "code", Code: domain.FieldCodeRequired, Message: "code is required"}})
		return
	}

	t, err := h.transfers.ValidateTransferCode(r.Context(), user, id, code)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer code validation failed", "transfer_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransferDTO(t, h.now()))
}

func (h *TransferHandler) Resend(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "transfer code reissue failed", h.transfers.ReissueTransferCode)
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "transfer cancellation failed", h.transfers.CancelTransfer)
}

func (h *TransferHandler) act(w http.ResponseWriter, r *http.Request, failure string,
	fn func(context.Context, *domain.User, uuid.UUID) (*domain.Transfer, error),
) {
	user, appErr := actingUser(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	id, appErr := pathID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	t, err := fn(r.Context(), user, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn(failure, "transfer_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransferDTO(t, h.now()))
}
