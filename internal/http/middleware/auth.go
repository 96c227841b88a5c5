// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates bearer access tokens. On success the caller's
// identity is stored in the Gin context ("identity") together with the bare
// user id ("userID", uint) used for rate-limit keys and access logs.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/security"
)

const (
	identityKey = "identity"
	userIDKey   = "userID"
)

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// access token with 401.
func RequireAuth(auth security.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		id, err := auth.Authenticate(token)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("access token rejected")
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		c.Set(identityKey, id)
		c.Set(userIDKey, id.ID)
		c.Next()
	}
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// IdentityFrom returns the identity set by RequireAuth.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok && id.ID != 0
}

// UserIDFrom returns the authenticated user id, if any.
func UserIDFrom(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}
