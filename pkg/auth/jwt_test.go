package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour)
	adminID := uuid.New()

	token, err := manager.GenerateToken(adminID, "admin@managex.local")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, adminID, claims.AdminID)
	assert.Equal(t, "admin@managex.local", claims.Email)
}

func TestJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	token, err := NewJWTManager("other", time.Hour).GenerateToken(uuid.New(), "a@b.c")
	require.NoError(t, err)

	_, err = NewJWTManager("secret", time.Hour).ValidateToken(token)
	assert.Error(t, err)

	expired, err := NewJWTManager("secret", -time.Minute).GenerateToken(uuid.New(), "a@b.c")
	require.NoError(t, err)
	_, err = NewJWTManager("secret", time.Hour).ValidateToken(expired)
	assert.Error(t, err)
}
