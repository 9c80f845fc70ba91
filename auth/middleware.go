package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fitgent/domain"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// Middleware handles JWT validation for incoming HTTP calls and injects the
// authenticated identity into the request context for downstream handlers.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error", "message": "authorization token is missing",
			})
			return
		}

		// Expecting the standard "Bearer <token>" format
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ValidateToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error", "message": "invalid or expired token",
			})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// CurrentActor retrieves the identity the middleware stored on the context.
func CurrentActor(c *gin.Context) domain.Actor {
	return domain.Actor{
		ID:   c.GetString(userIDKey),
		Role: domain.Role(c.GetString(roleKey)),
	}
}
