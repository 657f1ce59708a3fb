package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/banking-transfers/internal/auth"
	"github.com/josh-kwaku/banking-transfers/internal/handler"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/repository"
)

type idempotencyStore interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*repository.StoredResponse, error)
	Save(ctx context.Context, e *repository.StoredResponse) error
}

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 128
	replayedHeader    = "X-Idempotent-Replayed"
)

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key. The header is optional. Only 2xx responses are stored, so
// a rejected request can be retried under the same key.
func Idempotency(store idempotencyStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				handler.RespondAppError(w, handler.ErrInvalidIdempotencyKey, nil)
				return
			}

			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			log := logging.FromContext(r.Context())
			reqHash := requestHash(r.Method, r.URL.Path, body)

			stored, err := store.Get(r.Context(), key, userID)
			if err != nil {
				log.Error("idempotency lookup failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if stored != nil {
				if stored.RequestHash != reqHash {
					handler.RespondAppError(w, handler.ErrIdempotencyKeyReused, nil)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(replayedHeader, "true")
				w.WriteHeader(stored.StatusCode)
				if _, err := w.Write(stored.ResponseBody); err != nil {
					log.Error("failed to write idempotent replay", "error", err, "idempotency_key", key)
				}
				return
			}

			rec := &bodyRecorder{statusRecorder: statusRecorder{ResponseWriter: w, status: http.StatusOK}}
			next.ServeHTTP(rec, r)
			if rec.status < 200 || rec.status > 299 {
				return
			}

			now := time.Now().UTC()
			if err := store.Save(r.Context(), &repository.StoredResponse{
				Key:          key,
				UserID:       userID,
				RequestHash:  reqHash,
				StatusCode:   rec.status,
				ResponseBody: rec.body.Bytes(),
				CreatedAt:    now,
				ExpiresAt:    now.Add(ttl),
			}); err != nil {
				log.Error("idempotency store failed", "error", err, "idempotency_key", key)
			}
		})
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type bodyRecorder struct {
	statusRecorder
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
