package middleware

import (
	"net/http"
	"strings"

	"taskify/internal/logger"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// JWT requires a valid bearer token and stores the user id in the gin context.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing bearer token"})
			return
		}

		userID, err := service.ParseJWT(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// UserID returns the authenticated user set by JWT.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
