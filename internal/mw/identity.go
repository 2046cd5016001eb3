package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/model"
)

const actorKey = "gate.actor"

// Identity reads the actor resolved by the upstream auth gateway from the
// given headers. Requests without a valid pair are rejected with 401.
func Identity(idHeader, roleHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(idHeader))
		role, ok := model.ParseRole(strings.ToLower(strings.TrimSpace(c.GetHeader(roleHeader))))
		if id == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid identity"})
			return
		}
		c.Set(actorKey, gate.Actor{ID: id, Role: role})
		c.Next()
	}
}

// RequireRole rejects actors whose role is not in roles with 403.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid identity"})
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// ActorFrom returns the actor stored by Identity.
func ActorFrom(c *gin.Context) (gate.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return gate.Actor{}, false
	}
	actor, ok := v.(gate.Actor)
	return actor, ok
}
