package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	obscontext "github.com/smallbiznis/consigna/internal/observability/context"
	obsmiddleware "github.com/smallbiznis/consigna/internal/observability/logger"
)

// Identity is resolved by the upstream auth gateway and forwarded in these headers.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	contextActorIDKey   = "actor_id"
	contextActorRoleKey = "actor_role"
)

// ActorContext copies the gateway identity onto the request context so services and
// audit entries see who acted.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))
		if actorID != "" {
			c.Set(contextActorIDKey, actorID)
			c.Set(contextActorRoleKey, role)
			ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), actorID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// tagSite records the site a request acted on for the request log line.
func tagSite(c *gin.Context, siteCode string) {
	if siteCode = strings.TrimSpace(siteCode); siteCode != "" {
		c.Set(obsmiddleware.SiteCodeKey, siteCode)
	}
}
