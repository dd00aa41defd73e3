package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"appideas.app/engine/common/logger"
	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader   = "X-User-ID"
	AdminKeyHeader = "X-Admin-Key"

	userIDKey = "user_id"
)

// RequireUser resolves the caller from the X-User-ID header set by the
// fronting gateway.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
		userID, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + UserIDHeader})
			return
		}

		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(logger.WithLogFields(c.Request.Context(), logger.LogFields{
			UserID: logger.Ptr(userID),
		}))
		c.Next()
	}
}

// UserID returns the caller resolved by RequireUser.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// RequireAdminKey guards admin routes with a shared API key.
func RequireAdminKey(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin API not configured"})
			return
		}

		key := c.GetHeader(AdminKeyHeader)
		if key == "" {
			key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}
