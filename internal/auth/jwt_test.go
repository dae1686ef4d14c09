package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

func newTestJWTService() *JWTService {
	return NewJWTService("test-secret-key-for-testing-purposes", 15*time.Minute)
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := newTestJWTService()

	token, expiresAt, err := service.GenerateAccessToken(" Admin@Example.com ", domain.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, defaultIssuer, claims.Issuer)
}

func TestJWTService_Expired(t *testing.T) {
	service := NewJWTService("secret", -time.Minute)

	token, _, err := service.GenerateAccessToken("a@example.com", domain.RoleUser)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	service := newTestJWTService()

	other := NewJWTService("another-secret", time.Minute)
	token, _, err := other.GenerateAccessToken("a@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	_, err = service.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreignIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := foreignIssuer.SignedString([]byte("test-secret-key-for-testing-purposes"))
	require.NoError(t, err)
	_, err = service.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: domain.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = service.ValidateAccessToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.ValidateAccessToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsAuthorizer(t *testing.T) {
	var authz ClaimsAuthorizer

	anon := context.Background()
	assert.False(t, authz.IsCaller(anon, domain.RoleAdmin))
	assert.Empty(t, authz.CallerEmail(anon))

	seller := WithClaims(anon, &Claims{Email: "s@example.com", Role: domain.RoleSeller})
	assert.True(t, authz.IsCaller(seller, domain.RoleSeller))
	assert.False(t, authz.IsCaller(seller, domain.RoleAdmin))
	assert.Equal(t, "s@example.com", authz.CallerEmail(seller))
}
