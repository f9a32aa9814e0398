package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/auth"
	"chat-sync/internal/metadata"
)

const sessionContextKey = "session"

// AuthMiddleware resolves the Authorization bearer token to a session
// via the metadata service.
func AuthMiddleware(meta metadata.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		me, err := meta.Me(c.Request.Context(), parts[1])
		if err != nil || me.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(sessionContextKey, auth.Session{UserID: me.ID, Token: parts[1]})
		c.Next()
	}
}

// SessionFromContext returns the session installed by AuthMiddleware.
func SessionFromContext(c *gin.Context) (auth.Session, bool) {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return auth.Session{}, false
	}
	session, ok := val.(auth.Session)
	return session, ok && session.Valid()
}
