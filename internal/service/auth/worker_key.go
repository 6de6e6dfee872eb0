package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeyVerifier checks the key presented by the external delivery worker.
type KeyVerifier interface {
	// Verify returns nil when key matches, ErrInvalidWorkerKey otherwise.
	Verify(key string) error
}

// BcryptKeyVerifier verifies worker keys against a bcrypt hash.
type BcryptKeyVerifier struct {
	hash []byte
}

// Ensure BcryptKeyVerifier implements KeyVerifier interface
var _ KeyVerifier = (*BcryptKeyVerifier)(nil)

// NewBcryptKeyVerifier creates a verifier for the given bcrypt hash.
func NewBcryptKeyVerifier(hash string) (*BcryptKeyVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("worker key hash is not a bcrypt hash: %w", err)
	}
	return &BcryptKeyVerifier{hash: []byte(hash)}, nil
}

// Verify implements KeyVerifier.
func (v *BcryptKeyVerifier) Verify(key string) error {
	if key == "" {
		return ErrInvalidWorkerKey
	}
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(key))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidWorkerKey
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkerKey, err)
	}
	return nil
}

// HashKey returns the bcrypt hash of a worker key at the given cost.
func HashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", errors.New("worker key cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash worker key: %w", err)
	}
	return string(hash), nil
}
