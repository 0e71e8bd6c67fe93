// Package middleware holds HTTP middleware shared across the router.
package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/covox/relay/pkg/logging"
)

// RequestLogger emits a start/complete log pair for every HTTP request,
// correlated by the request id chi's RequestID middleware put on the
// context. When mounted without it, a fresh id is minted instead.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimiddleware.GetReqID(r.Context())
			if reqID == "" {
				reqID = uuid.NewString()
			}
			reqLogger := logger.With(
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
			)
			reqLogger.Info("request started", "remote_ip", r.RemoteAddr)
			next.ServeHTTP(w, r)
			reqLogger.Info("request completed", "duration_ms", time.Since(start).Milliseconds())
		})
	}
}
