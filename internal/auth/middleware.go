package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/k8s"
)

const (
	// ContextKeyUser is the gin context key holding *Claims.
	ContextKeyUser = "user"

	// ContextKeyStart holds the time.Time the request entered the router.
	// Error envelopes derive exec_time from it.
	ContextKeyStart = "request_start"
)

// AuthMiddleware checks the "Authorization: Bearer <token>" header. On
// success the claims are stored under ContextKeyUser and the username is
// attached to the request context as the actor of cluster mutations.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "invalid token format")
			return
		}
		claims, err := ParseToken(strings.TrimSpace(parts[1]), cfg)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(ContextKeyUser, claims)
		c.Request = c.Request.WithContext(k8s.WithActor(c.Request.Context(), claims.Username))
		c.Next()
	}
}

// RequireRole only lets through operators holding one of the allowed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	allowedSet := map[string]struct{}{}
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusForbidden, "no user in context")
			return
		}
		if _, ok := allowedSet[claims.Role]; !ok {
			abort(c, http.StatusForbidden, "access denied")
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by AuthMiddleware.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	val, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil, false
	}
	claims, ok := val.(*Claims)
	return claims, ok
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"meta_data": gin.H{"status": status, "message": message, "exec_time": ExecTime(c)},
		"data":      nil,
	})
}

// ExecTime returns the seconds elapsed since the request entered the router,
// or 0 when no start time was recorded.
func ExecTime(c *gin.Context) float64 {
	v, ok := c.Get(ContextKeyStart)
	if !ok {
		return 0
	}
	start, ok := v.(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start).Seconds()
}
