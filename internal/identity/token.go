package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

// TokenValidator checks HS256 access tokens issued by the college portal.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator constructs a validator for the shared secret.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// Validate parses and validates an access token returning the claims.
func (v *TokenValidator) Validate(tokenString string) (*models.JWTClaims, error) {
	if len(v.secret) == 0 {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token validation is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
