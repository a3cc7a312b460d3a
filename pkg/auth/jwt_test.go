package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "nutriadmin", time.Hour)
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("secret", "nutriadmin", time.Hour)
	userID := uuid.New()

	otherKey, err := NewJWTService("other", "nutriadmin", time.Hour).GenerateAccessToken(userID)
	require.NoError(t, err)
	otherIssuer, err := NewJWTService("secret", "someone-else", time.Hour).GenerateAccessToken(userID)
	require.NoError(t, err)
	expired, err := NewJWTService("secret", "nutriadmin", -time.Minute).GenerateAccessToken(userID)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"expired":      expired,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
