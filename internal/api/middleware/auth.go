package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/api/shared"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for user routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	if jwtService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("jwtService cannot be nil")
	}
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Authenticate validates the bearer token from the Authorization header and
// adds the user ID to the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrWrongTokenType),
				errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			}
			return
		}

		ctx := shared.WithUserID(r.Context(), claims.UserID)
		log := logger.FromContext(ctx).With("user_id", claims.UserID.String())
		ctx = logger.WithLogger(ctx, log)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts the user ID from the request context.
// Returns the user ID and a boolean indicating if it was found.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return shared.UserIDFromContext(r.Context())
}
