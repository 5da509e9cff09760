package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openlms/enrol-audit-api/internal/models"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
)

// TokenService validates platform-issued access tokens. This service never
// authenticates users itself; the platform SSO signs tokens with a shared
// secret.
type TokenService struct {
	secret []byte
}

// NewTokenService constructs TokenService.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// ValidateToken parses and verifies an access token.
func (s *TokenService) ValidateToken(token string) (*models.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &models.JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid access token")
	}
	claims, ok := parsed.Claims.(*models.JWTClaims)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Issue signs a token for the given subject. Used by operational tooling and
// tests; production tokens come from the platform SSO.
func (s *TokenService) Issue(userID int64, role models.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return signed, nil
}
