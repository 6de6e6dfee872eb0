package middleware

import (
	"errors"
	"net/http"

	"github.com/phrazzld/nudge-api/internal/api/shared"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/service/auth"
)

// WorkerKeyHeader carries the delivery worker's API key.
const WorkerKeyHeader = "X-Worker-Key"

// WorkerAuth admits only requests that present a valid worker key.
func WorkerAuth(verifier auth.KeyVerifier) func(http.Handler) http.Handler {
	if verifier == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("verifier cannot be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(WorkerKeyHeader)
			if key == "" {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Worker key required")
				return
			}
			if err := verifier.Verify(key); err != nil {
				if !errors.Is(err, auth.ErrInvalidWorkerKey) {
					shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
					return
				}
				logger.FromContext(r.Context()).Warn("rejected worker key",
					"remote_addr", r.RemoteAddr)
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid worker key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
