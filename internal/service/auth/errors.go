package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrWrongTokenType indicates a token issued for another purpose
	ErrWrongTokenType = errors.New("wrong authentication token type")

	// ErrInvalidWorkerKey indicates the delivery worker key does not match the configured hash
	ErrInvalidWorkerKey = errors.New("invalid worker key")
)
