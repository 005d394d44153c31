package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/everkeep/internal/auth"
	"github.com/charlesng35/everkeep/pkg/errors"
	"github.com/charlesng35/everkeep/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// Auth enforces bearer-token authentication and propagates the verified
// identity into the request context.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			// All validation failures normalise to 401.
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}

// UserID returns the authenticated user id from the request context.
func UserID(c *gin.Context) (string, bool) {
	value, ok := c.Get(CtxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := value.(string)
	return id, ok && id != ""
}

// Claims returns the verified token claims from the request context.
func Claims(c *gin.Context) (*iauth.Claims, bool) {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*iauth.Claims)
	return claims, ok
}
