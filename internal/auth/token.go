package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/config"
	"github.com/xelth-com/commissariat/internal/models"
)

// Identity is what a verified bearer token says about its holder
type Identity struct {
	AccountID string
	Role      models.Role
	TokenID   string
	ExpiresAt time.Time
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies bearer credentials
type TokenService struct {
	cfg     config.AuthConfig
	revoked RevocationStore
	now     func() time.Time
}

// NewTokenService builds the credential service from explicit configuration
func NewTokenService(cfg config.AuthConfig, revoked RevocationStore) *TokenService {
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &TokenService{cfg: cfg, revoked: revoked, now: time.Now}
}

// Issue signs a token for the account
func (s *TokenService) Issue(account *models.Account) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)

	c := claims{
		Role: string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token
func (s *TokenService) Verify(ctx context.Context, tokenString string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperrors.Unauthorized("token expired")
		}
		return Identity{}, apperrors.Unauthorized("invalid token")
	}

	role, err := models.ParseRole(c.Role)
	if err != nil || c.Subject == "" || c.ID == "" {
		return Identity{}, apperrors.Unauthorized("invalid token")
	}

	revoked, err := s.revoked.IsRevoked(ctx, c.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Identity{}, apperrors.Unauthorized("token revoked")
	}

	return Identity{
		AccountID: c.Subject,
		Role:      role,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// Revoke invalidates a verified token until its natural expiry
func (s *TokenService) Revoke(ctx context.Context, id Identity) error {
	return s.revoked.Revoke(ctx, id.TokenID, id.ExpiresAt)
}
