package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/banking-transfers/internal/handler"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
)

// Recovery turns a panic into a 500. A panic inside a unit of work has
// already rolled the transaction back by the time it reaches here.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(r.Context()).Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
