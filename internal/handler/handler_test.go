package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/domain"
	"github.com/josh-kwaku/banking-transfers/internal/service/transfer"
	"github.com/josh-kwaku/banking-transfers/internal/session"
)

const issuedCode = "482913"

type fakeCreditService struct {
	initiated  decimal.Decimal
	confirmErr error
	cleared    int
}

func (f *fakeCreditService) InitiateTransfer(ctx context.Context, sess transfer.Session, subAccountID uuid.UUID, amount decimal.Decimal, user *domain.User) (*transfer.CreditChallenge, error) {
	f.initiated = amount
	if err := sess.Set(ctx, "marker", []byte("x"), time.Minute); err != nil {
		return nil, err
	}
	return &transfer.CreditChallenge{
		Code:         issuedCode,
		SubAccountID: subAccountID,
		Amount:       amount,
		ExpiresAt:    time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC),
	}, nil
}

func (f *fakeCreditService) ConfirmCreditTransfer(_ context.Context, _ transfer.Session, submitted string, user *domain.User) (*transfer.CreditTransferResult, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	amount := decimal.RequireFromString("200")
	return &transfer.CreditTransferResult{
		Debit:           &domain.Transaction{ID: uuid.New(), Amount: amount},
		Credit:          &domain.Transaction{ID: uuid.New(), Amount: amount},
		NewBalance:      decimal.RequireFromString("1200"),
		RemainingCredit: decimal.RequireFromString("300"),
	}, nil
}

func (f *fakeCreditService) ClearPendingCreditTransfer(context.Context, transfer.Session) error {
	f.cleared++
	return nil
}

func withUser(r *http.Request, u *domain.User, sessionID string) *http.Request {
	ctx := auth.ContextWithUser(r.Context(), u)
	ctx = auth.ContextWithUserID(ctx, u.ID)
	ctx = auth.ContextWithSessionID(ctx, sessionID)
	return r.WithContext(ctx)
}

func creditRouter(h *CreditTransferHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/sub-accounts/{id}/transfers", h.Initiate).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/credit-transfers/confirm", h.Confirm).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/credit-transfers/pending", h.Cancel).Methods(http.MethodDelete)
	return r
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreditTransferHandler_InitiateNeverReturnsCode(t *testing.T) {
	svc := &fakeCreditService{}
	store := session.NewMemoryStore()
	router := creditRouter(NewCreditTransferHandler(svc, store))
	user := &domain.User{ID: uuid.New()}
	subID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sub-accounts/%s/transfers", subID), strings.NewReader(`{"amount":"200.00"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withUser(req, user, "sess-9"))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotContains(t, rec.Body.String(), issuedCode)
	assert.Contains(t, rec.Body.String(), `"amount":"200.00"`)
	assert.True(t, decimal.RequireFromString("200").Equal(svc.initiated))

	_, ok, err := store.Get(context.Background(), "session:sess-9:marker")
	require.NoError(t, err)
	assert.True(t, ok, "service receives a scope bound to the token's session")
}

func TestCreditTransferHandler_InitiateValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "missing amount", body: `{}`, wantCode: domain.FieldCodeRequired},
		{name: "three decimals", body: `{"amount":"1.234"}`, wantCode: domain.FieldCodeScale},
		{name: "negative", body: `{"amount":"-4"}`, wantCode: domain.FieldCodeNotPositive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := creditRouter(NewCreditTransferHandler(&fakeCreditService{}, session.NewMemoryStore()))
			req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sub-accounts/%s/transfers", uuid.New()), strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, withUser(req, &domain.User{ID: uuid.New()}, "s"))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
		})
	}
}

func TestCreditTransferHandler_ConfirmErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "expired", err: fmt.Errorf("x: %w", domain.ErrAuthorizationExpired), wantStatus: http.StatusGone, wantCode: "CODE_EXPIRED"},
		{name: "invalid", err: fmt.Errorf("x: %w", domain.ErrAuthorizationInvalid), wantStatus: http.StatusUnprocessableEntity, wantCode: "CODE_INVALID"},
		{name: "no pending", err: domain.ErrNoPendingTransfer, wantStatus: http.StatusConflict, wantCode: "NO_PENDING_TRANSFER"},
		{name: "insufficient", err: domain.ErrInsufficientFunds, wantStatus: http.StatusUnprocessableEntity, wantCode: "INSUFFICIENT_FUNDS"},
		{name: "conflict", err: domain.ErrConcurrencyConflict, wantStatus: http.StatusConflict, wantCode: "CONCURRENCY_CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := creditRouter(NewCreditTransferHandler(&fakeCreditService{confirmErr: tt.err}, session.NewMemoryStore()))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/credit-transfers/confirm", strings.NewReader(`{"code":"123456"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, withUser(req, &domain.User{ID: uuid.New()}, "s"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestCreditTransferHandler_ConfirmSuccess(t *testing.T) {
	router := creditRouter(NewCreditTransferHandler(&fakeCreditService{}, session.NewMemoryStore()))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/credit-transfers/confirm", strings.NewReader(`{"code":" 123456 "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withUser(req, &domain.User{ID: uuid.New()}, "s"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"new_balance":"1200.00"`)
	assert.Contains(t, body, `"remaining_credit":"300.00"`)
}

func TestCreditTransferHandler_ClearWithoutSession(t *testing.T) {
	svc := &fakeCreditService{}
	router := creditRouter(NewCreditTransferHandler(svc, session.NewMemoryStore()))
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/credit-transfers/pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, svc.cleared)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/credit-transfers/pending", nil), &domain.User{ID: uuid.New()}, "s"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, svc.cleared)
}

func TestRespondDomainError_BlockedWinsOverInvalid(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondDomainError(rec, fmt.Errorf("SubmitCode: %w: %w", domain.ErrAuthorizationInvalid, domain.ErrTransferBlocked))

	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "TRANSFER_BLOCKED", decodeResponse(t, rec).Error.Code)
}

func TestRespondDomainError_InsufficientFundsIsOneClass(t *testing.T) {
	fields := []FieldError{{Field: "amount", Code: domain.FieldCodeInsufficient, Message: "amount exceeds the available credit of 100.00"}}

	tests := []struct {
		name        string
		err         error
		wantDetails bool
	}{
		{
			name:        "detected before a code is issued",
			err:         fmt.Errorf("InitiateTransfer: %w: %w", domain.ErrInsufficientFunds, &domain.ValidationError{Fields: fields}),
			wantDetails: true,
		},
		{
			name: "detected under row locks",
			err:  fmt.Errorf("ExecuteCreditTransfer: executeCredit: sub-account: Debit: %w", domain.ErrInsufficientFunds),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondDomainError(rec, tt.err)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "INSUFFICIENT_FUNDS", resp.Error.Code)
			if tt.wantDetails {
				assert.Contains(t, rec.Body.String(), `"code":"insufficient_amount"`)
			} else {
				assert.Nil(t, resp.Error.Details)
			}
		})
	}
}

func TestRespondDomainError_SubCentAmount(t *testing.T) {
	fe := FieldError{Field: "amount", Code: domain.FieldCodeScale, Message: "amount must have at most 2 decimal places"}
	rec := httptest.NewRecorder()
	RespondDomainError(rec, fmt.Errorf("ExecuteCreditTransfer: %w: %w", domain.ErrInvalidAmount, &domain.ValidationError{Fields: []FieldError{fe}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeResponse(t, rec).Error.Code)
	assert.Contains(t, rec.Body.String(), `"code":"scale"`)
}

func TestRespondDomainError_Unknown(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondDomainError(rec, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestCreateTransferRequest_Validate(t *testing.T) {
	good := createTransferRequest{
		SourceAccountID: uuid.NewString(),
		BeneficiaryID:   uuid.NewString(),
		Amount:          "10.50",
		Description:     " rent ",
	}
	req, errs := good.Validate()
	require.Empty(t, errs)
	assert.Equal(t, "rent", req.Description)
	assert.True(t, decimal.RequireFromString("10.5").Equal(req.Amount))

	bad := createTransferRequest{SourceAccountID: "nope", Amount: "0"}
	_, errs = bad.Validate()
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"source_account_id", "beneficiary_id", "amount"}, fields)
}

func TestHealthHandler_Readiness(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"database": func(context.Context) error { return nil },
		"kafka":    func(context.Context) error { return errors.New("no brokers") },
	})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "down", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "kafka": "down"}, body.Checks)
}
