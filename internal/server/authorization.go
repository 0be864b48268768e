package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/consigna/internal/authorization"
)

type Actor struct {
	ID   string
	Role string
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	err := s.authzSvc.Authorize(c.Request.Context(), actor.ID, actor.Role, strings.TrimSpace(object), strings.TrimSpace(action))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, authorization.ErrInvalidActor), errors.Is(err, authorization.ErrInvalidRole):
		return ErrUnauthorized
	default:
		return err
	}
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil {
		return Actor{}, false
	}
	id := strings.TrimSpace(c.GetString(contextActorIDKey))
	// the system subject is reserved for background jobs
	if id == "" || id == authorization.RoleSystem {
		return Actor{}, false
	}
	return Actor{ID: id, Role: c.GetString(contextActorRoleKey)}, true
}
