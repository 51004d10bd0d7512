package services_test

import (
	"testing"
	"time"

	"tokoorder/internal/services"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	authService := services.NewAuthService("test_jwt_secret")

	token, err := authService.IssueToken("u1", "budi")
	require.NoError(t, err)

	principal, err := authService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, "budi", principal.Username)
}

func TestAuthService_ValidateToken_Invalid(t *testing.T) {
	authService := services.NewAuthService("test_jwt_secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	expiredString, err := expired.SignedString([]byte("test_jwt_secret"))
	require.NoError(t, err)

	otherSecret, err := services.NewAuthService("another_secret").IssueToken("u1", "budi")
	require.NoError(t, err)

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	noUserString, err := noUser.SignedString([]byte("test_jwt_secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expiredString},
		{"wrong secret", otherSecret},
		{"missing user", noUserString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authService.ValidateToken(tt.token)
			assert.ErrorIs(t, err, services.ErrInvalidToken)
		})
	}
}
