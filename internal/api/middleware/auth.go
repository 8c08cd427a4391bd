package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"greendrake/chambers/internal/auth"
	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyPrincipal holds the authenticated caller in Gin context.
	ContextKeyPrincipal = "principal"
)

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		p, err := claims.Principal()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// PrincipalFrom returns the caller set by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (authz.Principal, bool) {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return authz.Principal{}, false
	}
	p, ok := v.(authz.Principal)
	return p, ok
}

// RequireRoles rejects callers whose role is not listed. Assumes
// AuthMiddleware runs first.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || !p.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient privileges"})
			return
		}
		c.Next()
	}
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
func AdminMiddleware() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

// StaffMiddleware admits every internal role and keeps client users out.
func StaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || !p.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Staff access required"})
			return
		}
		c.Next()
	}
}

// CronAuth guards the scan triggers with a shared bearer secret. An empty
// secret disables the endpoints.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Cron endpoints are disabled"})
			return
		}
		token, ok := bearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
