package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret      = "test-secret-that-is-long-enough-for-testing"
	wrongTestSecret = "wrong-secret-that-is-long-enough-for-testing"
)

func newTestJWTService(t *testing.T, secret string, now func() time.Time) *hmacJWTService {
	t.Helper()
	svc, err := newHMACJWTService(config.AuthConfig{
		JWTSecret:            secret,
		TokenLifetimeMinutes: 60,
	}, now)
	require.NoError(t, err)
	return svc
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.AuthConfig
		wantErr bool
	}{
		{name: "valid", cfg: config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60}},
		{name: "short secret", cfg: config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60}, wantErr: true},
		{name: "zero lifetime", cfg: config.AuthConfig{JWTSecret: testSecret}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, err := NewJWTService(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	svc := newTestJWTService(t, testSecret, func() time.Time { return fixedTime })

	token, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, tokenTypeAccess, claims.TokenType)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	at := func(ts time.Time) func() time.Time { return func() time.Time { return ts } }

	tests := []struct {
		name      string
		setupFunc func(t *testing.T) (JWTService, string)
		wantErr   error
	}{
		{
			name: "valid token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				svc := newTestJWTService(t, testSecret, at(fixedTime))
				token, err := svc.GenerateToken(context.Background(), userID)
				require.NoError(t, err)
				return svc, token
			},
		},
		{
			name: "within clock skew after expiry",
			setupFunc: func(t *testing.T) (JWTService, string) {
				token, err := newTestJWTService(t, testSecret, at(fixedTime)).
					GenerateToken(context.Background(), userID)
				require.NoError(t, err)
				return newTestJWTService(t, testSecret, at(fixedTime.Add(61*time.Minute))), token
			},
		},
		{
			name: "expired token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				token, err := newTestJWTService(t, testSecret, at(fixedTime)).
					GenerateToken(context.Background(), userID)
				require.NoError(t, err)
				return newTestJWTService(t, testSecret, at(fixedTime.Add(2*time.Hour))), token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "issued in the future",
			setupFunc: func(t *testing.T) (JWTService, string) {
				svc := newTestJWTService(t, testSecret, at(fixedTime))
				claims := jwtCustomClaims{
					UserID:    userID,
					TokenType: tokenTypeAccess,
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    tokenIssuer,
						NotBefore: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
						ExpiresAt: jwt.NewNumericDate(fixedTime.Add(2 * time.Hour)),
					},
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
				require.NoError(t, err)
				return svc, token
			},
			wantErr: ErrTokenNotYetValid,
		},
		{
			name: "invalid signature",
			setupFunc: func(t *testing.T) (JWTService, string) {
				token, err := newTestJWTService(t, testSecret, at(fixedTime)).
					GenerateToken(context.Background(), userID)
				require.NoError(t, err)
				return newTestJWTService(t, wrongTestSecret, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong token type",
			setupFunc: func(t *testing.T) (JWTService, string) {
				svc := newTestJWTService(t, testSecret, at(fixedTime))
				token, err := svc.generate(context.Background(), userID, "refresh", fixedTime.Add(time.Hour))
				require.NoError(t, err)
				return svc, token
			},
			wantErr: ErrWrongTokenType,
		},
		{
			name: "malformed token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				return newTestJWTService(t, testSecret, at(fixedTime)), "this.is.not.a.valid.jwt.token"
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "empty token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				return newTestJWTService(t, testSecret, at(fixedTime)), ""
			},
			wantErr: ErrMissingToken,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, token := tt.setupFunc(t)
			claims, err := svc.ValidateToken(context.Background(), token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, claims.UserID)
		})
	}
}
