package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const principalContextKey contextKey = "dropbucketPrincipal"

// AuthMiddleware validates bearer credentials and injects the principal.
func AuthMiddleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		credential := extractBearerToken(authHeader)
		if credential == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := service.Authenticate(c.Request.Context(), credential)
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("authenticate request")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key or token"})
			return
		}

		c.Set(string(principalContextKey), principal)
		c.Next()
	}
}

// RequireAdmin rejects principals that are not administrators.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok || !principal.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// CurrentPrincipal extracts the authenticated principal from the context.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	value, exists := c.Get(string(principalContextKey))
	if !exists {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

// RequireOwner returns the key id that owns new buckets. It fails for
// unauthenticated requests and for the admin key, which owns nothing.
func RequireOwner(c *gin.Context) (uuid.UUID, Principal, bool) {
	principal, ok := CurrentPrincipal(c)
	if !ok || principal.KeyID == uuid.Nil {
		return uuid.Nil, Principal{}, false
	}
	return principal.KeyID, principal, true
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
