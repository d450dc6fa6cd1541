package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/auth"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

// AuthMiddleware accepts a bearer token, or a token query parameter for
// clients that cannot set headers such as browser websockets.
func AuthMiddleware(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Log.Warnf("Auth Middleware: Invalid header format: %s", authHeader)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
				return
			}
			token = parts[1]
		}
		if token == "" {
			logger.Log.Warn("Auth Middleware: Missing Authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := iss.ValidateToken(token)
		if err != nil {
			logger.Log.Warnf("Auth Middleware: Token validation failed: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token: " + err.Error()})
			return
		}

		c.Set("username", claims.Subject)
		c.Set("role", claims.Role)

		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists || role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}
