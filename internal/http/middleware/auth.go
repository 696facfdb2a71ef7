package middleware

import (
	"net/http"
	"strings"

	"messenger-be/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey = "userID"
	emailKey  = "email"
)

func AuthMiddleware(tokens auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}

		claims, err := tokens.Validate(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(emailKey, claims.Email)
		c.Next()
	}
}

func MustUserID(c *gin.Context) string {
	return c.MustGet(userIDKey).(string)
}

func MustEmail(c *gin.Context) string {
	return c.MustGet(emailKey).(string)
}
