package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/config"
	"github.com/xelth-com/commissariat/internal/models"
)

func TestPasswordHashing(t *testing.T) {
	h := NewHasher(4)
	password := "secret123"

	hash, err := h.HashPassword(password)
	require.NoError(t, err)
	assert.NotEqual(t, password, hash)
	assert.NotEmpty(t, hash)

	assert.True(t, h.CheckPasswordHash(password, hash), "password should match hash")
	assert.False(t, h.CheckPasswordHash("wrongpassword", hash), "wrong password should not match hash")
}

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret: "test-secret-key-12345",
		TokenTTL:  time.Hour,
		Issuer:    "test",
	}
}

func TestTokenIssueAndVerify(t *testing.T) {
	svc := NewTokenService(testConfig(), nil)
	account := &models.Account{ID: "uuid-1234", Email: "test@example.com", Role: models.RoleStationAgent}

	token, expiresAt, err := svc.Issue(account)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	id, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, id.AccountID)
	assert.Equal(t, models.RoleStationAgent, id.Role)
	assert.NotEmpty(t, id.TokenID)
}

func TestTokenVerifyFailures(t *testing.T) {
	account := &models.Account{ID: "uuid-1234", Role: models.RoleDeclarant}

	t.Run("WrongKey", func(t *testing.T) {
		token, _, err := NewTokenService(testConfig(), nil).Issue(account)
		require.NoError(t, err)

		other := testConfig()
		other.JWTSecret = "wrong-key"
		_, err = NewTokenService(other, nil).Verify(context.Background(), token)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Expired", func(t *testing.T) {
		svc := NewTokenService(testConfig(), nil)
		svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := svc.Issue(account)
		require.NoError(t, err)

		svc.now = time.Now
		_, err = svc.Verify(context.Background(), token)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := NewTokenService(testConfig(), nil).Verify(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		cfg := testConfig()
		c := claims{
			Role: "superuser",
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti",
				Subject:   "uuid-1234",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(cfg.JWTSecret))
		require.NoError(t, err)

		_, err = NewTokenService(cfg, nil).Verify(context.Background(), token)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestTokenRevocation(t *testing.T) {
	ctx := context.Background()
	svc := NewTokenService(testConfig(), NewMemoryRevocations())
	token, _, err := svc.Issue(&models.Account{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)

	id, err := svc.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, id))

	_, err = svc.Verify(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Contains(t, err.Error(), "revoked")
}

func TestMemoryRevocationsExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRevocations()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Revoke(ctx, "t1", now.Add(time.Minute)))
	revoked, err := m.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = m.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
