package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"research-portal/project-portal-backend/internal/auth"
)

const actorKey = "actor"

// AuthMiddleware resolves the caller from a bearer token (or the "token"
// cookie) and stores it in the gin context.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		} else if cookie, err := c.Cookie("token"); err == nil {
			token = cookie
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access token required", "code": "UNAUTHORIZED"})
			return
		}

		actor, err := tokens.Parse(token)
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "access token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "UNAUTHORIZED"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFromContext returns the actor set by AuthMiddleware.
func ActorFromContext(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := v.(auth.Actor)
	return actor, ok
}

// WithActor stores an actor in the context. Used by tests and internal callers.
func WithActor(c *gin.Context, actor auth.Actor) {
	c.Set(actorKey, actor)
}
