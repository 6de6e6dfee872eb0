package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/config"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
)

const (
	tokenTypeAccess = "access"
	tokenIssuer     = "nudge-api"
)

// hmacJWTService is an implementation of JWTService using HMAC-SHA signing.
type hmacJWTService struct {
	signingKey    []byte
	tokenLifetime time.Duration
	timeFunc      func() time.Time // Injectable for testing
	clockSkew     time.Duration    // Allowed time difference for validation to handle clock drift
}

// jwtCustomClaims defines the structure of JWT claims we use
type jwtCustomClaims struct {
	UserID    uuid.UUID `json:"uid"`
	TokenType string    `json:"type"`
	jwt.RegisteredClaims
}

// Ensure hmacJWTService implements JWTService interface
var _ JWTService = (*hmacJWTService)(nil)

// NewJWTService creates a new JWT service using HMAC-SHA signing.
func NewJWTService(cfg config.AuthConfig) (JWTService, error) {
	return newHMACJWTService(cfg, time.Now)
}

func newHMACJWTService(cfg config.AuthConfig, now func() time.Time) (*hmacJWTService, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if cfg.TokenLifetimeMinutes <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}

	return &hmacJWTService{
		signingKey:    []byte(cfg.JWTSecret),
		tokenLifetime: time.Duration(cfg.TokenLifetimeMinutes) * time.Minute,
		timeFunc:      now,
		clockSkew:     2 * time.Minute,
	}, nil
}

// GenerateToken creates a signed JWT access token with user claims.
func (s *hmacJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.generate(ctx, userID, tokenTypeAccess, s.timeFunc().Add(s.tokenLifetime))
}

func (s *hmacJWTService) generate(
	ctx context.Context,
	userID uuid.UUID,
	tokenType string,
	expiresAt time.Time,
) (string, error) {
	log := logger.FromContext(ctx)
	now := s.timeFunc()

	claims := jwtCustomClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.signingKey)
	if err != nil {
		log.Error("failed to sign JWT",
			"error", err,
			"user_id", userID,
			"token_type", tokenType,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", fmt.Errorf("failed to sign %s token with HMAC-SHA256: %w", tokenType, err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT access token and returns the claims if valid.
// It verifies the token has type "access" and returns ErrWrongTokenType if not.
func (s *hmacJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)

	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := s.timeFunc()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time {
			return now
		}),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwtCustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		parserOpts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: token not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*jwtCustomClaims)
	if !ok || !token.Valid {
		log.Debug("token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess {
		log.Debug("token validation failed: wrong token type",
			"expected", tokenTypeAccess,
			"actual", claims.TokenType)
		return nil, ErrWrongTokenType
	}
	if claims.UserID == uuid.Nil {
		log.Debug("token validation failed: missing user ID")
		return nil, ErrInvalidToken
	}

	log.Debug("token validated successfully",
		"user_id", claims.UserID,
		"token_id", claims.ID,
		"expiry", claims.ExpiresAt.Time)

	return &Claims{
		UserID:    claims.UserID,
		TokenType: claims.TokenType,
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}, nil
}
