package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gradientbear/notion-assistant-alexa-skill-sub001/internal/service"
)

const introspectionKey = "introspection"

// Auth validates the Authorization header through the introspection cascade
// and attaches the result.
type Auth struct {
	AuthService *service.AuthService
}

// RequireBearer ensures the request carries a resolvable bearer credential
// of any of the supported formats.
func (m *Auth) RequireBearer(c *gin.Context) {
	raw, ok := BearerToken(c)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header missing or invalid."})
		return
	}

	result, err := m.AuthService.Introspect(c.Request.Context(), raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Token could not be verified."})
		return
	}

	c.Set(introspectionKey, result)
	c.Next()
}

// GetIntrospection exposes the resolved credential to handlers.
func GetIntrospection(c *gin.Context) (*service.Introspection, bool) {
	value, ok := c.Get(introspectionKey)
	if !ok {
		return nil, false
	}
	result, ok := value.(*service.Introspection)
	return result, ok
}

// BearerToken extracts the bearer credential from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
