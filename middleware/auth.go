package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/challengeplans/server/cache"
	"github.com/challengeplans/server/config"
	"github.com/challengeplans/server/model"
)

const UserIDKey = "user_id"
const UserRoleKey = "user_role"

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		sessionKey := "session:" + tokenStr
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, sessionKey)
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(UserIDKey, claims.UserID)
		ctx.Set(UserRoleKey, claims.Role)
		ctx.Next()
	}
}

// RequireAdmin rejects requests whose authenticated user is not an admin.
// It must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if GetUserRole(ctx) != model.RoleAdmin {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		ctx.Next()
	}
}

// GetUserID retrieves the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) int64 {
	if v, exists := c.Get(UserIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetUserRole retrieves the authenticated user's role from the Gin context.
func GetUserRole(c *gin.Context) string {
	if v, exists := c.Get(UserRoleKey); exists {
		return v.(string)
	}
	return ""
}
