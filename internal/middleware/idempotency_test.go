package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/repository"
)

type memIdempotencyStore map[string]*repository.StoredResponse

func (m memIdempotencyStore) Get(_ context.Context, key string, userID uuid.UUID) (*repository.StoredResponse, error) {
	return m[userID.String()+"/"+key], nil
}

func (m memIdempotencyStore) Save(_ context.Context, e *repository.StoredResponse) error {
	m[e.UserID.String()+"/"+e.Key] = e
	return nil
}

func TestIdempotency(t *testing.T) {
	userID := uuid.New()
	calls := 0
	status := http.StatusCreated
	create := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(calls) + `}`))
	})

	store := memIdempotencyStore{}
	h := Idempotency(store, time.Hour)(create)

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(body))
		if key != "" {
			req.Header.Set(idempotencyHeader, key)
		}
		req = req.WithContext(auth.ContextWithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("replays the first response", func(t *testing.T) {
		first := send("k1", `{"amount":"10.00"}`)
		require.Equal(t, http.StatusCreated, first.Code)

		second := send("k1", `{"amount":"10.00"}`)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get(replayedHeader))
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, 1, calls)
	})

	t.Run("different body under same key", func(t *testing.T) {
		rec := send("k1", `{"amount":"99.00"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "IDEMPOTENCY_KEY_REUSED")
		assert.Equal(t, 1, calls)
	})

	t.Run("without key every request runs", func(t *testing.T) {
		send("", `{}`)
		send("", `{}`)
		assert.Equal(t, 3, calls)
	})

	t.Run("failures are not stored", func(t *testing.T) {
		status = http.StatusUnprocessableEntity
		send("k2", `{}`)
		status = http.StatusCreated
		rec := send("k2", `{}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, rec.Header().Get(replayedHeader))
		assert.Equal(t, 5, calls)
	})

	t.Run("oversized key", func(t *testing.T) {
		rec := send(strings.Repeat("k", maxIdempotencyKey+1), `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 5, calls)
	})
}
