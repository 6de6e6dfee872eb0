package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/api/shared"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/redact"
)

// getUserIDFromContext extracts the authenticated user's UUID from the request context.
// The user ID is expected to be placed in the context by the authentication middleware.
func getUserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	return shared.UserIDFromContext(r.Context())
}

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}

	return id, nil
}

// handleUserIDAndPathUUID extracts both the user ID from context and a UUID
// path parameter. It writes an error response and returns false if either
// extraction fails.
func handleUserIDAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (uuid.UUID, uuid.UUID, bool) {
	if log == nil {
		log = logger.FromContextOrDefault(r.Context(), slog.Default())
	}

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, uuid.Nil, false
	}

	pathID, err := getPathUUID(r, paramName)
	if err != nil {
		log.Warn("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, pathID, true
}

// decodeAndValidate reads the JSON body into v and runs its validation.
// It writes a 400 response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}, log *slog.Logger) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		message := "Invalid request format"
		if errors.Is(err, shared.ErrEmptyBody) {
			message = GetSafeErrorMessage(err)
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, message)
		return false
	}

	if err := shared.ValidateRequest(v); err != nil {
		log.Warn("validation error", slog.String("error", redact.Error(err)))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
