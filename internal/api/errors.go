package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/nudge-api/internal/api/shared"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/service/auth"
	"github.com/phrazzld/nudge-api/internal/service/delivery"
	"github.com/phrazzld/nudge-api/internal/service/subscription"
	"github.com/phrazzld/nudge-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case err == nil:
		return http.StatusOK

	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrInvalidWorkerKey):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, delivery.ErrConcurrencyConflict),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Unprocessable: the request is valid but the user cannot be reached
	case errors.Is(err, delivery.ErrNoChannel):
		return http.StatusUnprocessableEntity

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidQuality),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, shared.ErrEmptyBody),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError
	var validationErrs validator.ValidationErrors

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrMissingToken):
		return "Authorization token is required"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, auth.ErrInvalidWorkerKey):
		return "Invalid worker key"

	// Authorization errors
	case errors.Is(err, delivery.ErrNotOwned):
		return "You do not own this delivery"
	case errors.Is(err, subscription.ErrChannelNotOwned):
		return "You do not own this channel"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Operation not permitted"

	// Not found errors
	case errors.Is(err, delivery.ErrDeliveryNotFound):
		return "Delivery not found"
	case errors.Is(err, delivery.ErrProgressNotFound):
		return "No learning progress for this content"
	case errors.Is(err, delivery.ErrNoCards):
		return "Content has no cards to deliver"
	case errors.Is(err, subscription.ErrProductNotFound):
		return "Product not found"
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return "Subscription not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Delivery is not awaiting feedback"
	case errors.Is(err, delivery.ErrConcurrencyConflict),
		errors.Is(err, store.ErrDuplicate):
		return "Request conflicts with a concurrent change, please retry"

	case errors.Is(err, delivery.ErrNoChannel):
		return "No active channel with push enabled"

	// Bad request errors
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.As(err, &validationErr) && validationErr.Field != "":
		return fmt.Sprintf("Invalid %s: %s", validationErr.Field, validationErr.Message)
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidQuality),
		errors.Is(err, domain.ErrInvalidID):
		return "Validation error"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field, without struct or package names.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}

	fe := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", toSnakeCase(fe.Field()), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	case "uuid", "uuid4":
		return "invalid ID format"
	default:
		return "validation failed"
	}
}

func toSnakeCase(field string) string {
	out := make([]byte, 0, len(field)+4)
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 && !(field[i-1] >= 'A' && field[i-1] <= 'Z') {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// HandleAPIError writes the status and safe message for err. For 500s the
// fallback message, when set, replaces the generic one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallbackMsg != "" {
		message = fallbackMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
