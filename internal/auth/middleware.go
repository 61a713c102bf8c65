package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"honestai/internal/models"
)

const (
	userContextKey   = "auth_user"
	claimsContextKey = "auth_claims"
)

// Middleware resolves the bearer token and stores the user in the context.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, err := r.Resolve(c.Request.Context(), extractToken(c))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": models.ErrUnauthorized.Error()})
			return
		}
		c.Set(userContextKey, user)
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// UserFromContext retrieves the authenticated user from the gin context.
func UserFromContext(c *gin.Context) (*models.User, bool) {
	val, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok && user != nil
}

// ClaimsFromContext retrieves the verified token claims captured by the middleware.
func ClaimsFromContext(c *gin.Context) (*Claims, bool) {
	val, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*Claims)
	return claims, ok && claims != nil
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
