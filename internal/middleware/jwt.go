package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-gateway/internal/identity"
	"github.com/noah-isme/qr-attendance-gateway/internal/repository"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

func bearerFromHeader(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// forwardToken stores the caller's token on the request context so college
// API calls made on its behalf carry it.
func forwardToken(c *gin.Context, token string) {
	c.Request = c.Request.WithContext(repository.WithBearerToken(c.Request.Context(), token))
}

// JWT protects routes by requiring a valid access token.
func JWT(validator *identity.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		token, ok := bearerFromHeader(c)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		forwardToken(c, token)
		c.Next()
	}
}

// OptionalJWT attaches claims when the token validates but does not block.
// The bearer token is forwarded upstream either way.
func OptionalJWT(validator *identity.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerFromHeader(c)
		if !ok {
			c.Next()
			return
		}
		forwardToken(c, token)

		if validator != nil {
			if claims, err := validator.Validate(token); err == nil {
				c.Set(ContextUserKey, claims)
			}
		}
		c.Next()
	}
}

// RequireCredential rejects requests that carry neither validated claims nor a
// bearer token to forward. It guards routes behind OptionalJWT so headers and
// query parameters alone never select a teacher.
func RequireCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserKey); ok {
			c.Next()
			return
		}
		if repository.HasBearerToken(c.Request.Context()) {
			c.Next()
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "an access token is required"))
		c.Abort()
	}
}
