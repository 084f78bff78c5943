package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	obscontext "github.com/smallbiznis/quotaguard/internal/observability/context"
)

const (
	// HeaderUserUID carries the identity asserted by the upstream gateway.
	HeaderUserUID = "X-User-Uid"

	contextActorKey = "actor"
)

// Authenticated resolves the calling customer from the gateway header.
func (s *Server) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(HeaderUserUID))
		if uid == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor, err := s.customerSvc.GetByUID(c.Request.Context(), uid)
		if err != nil {
			if errors.Is(err, customerdomain.ErrNotFound) || errors.Is(err, customerdomain.ErrInvalidUID) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}
		if !actor.IsActive {
			AbortWithError(c, customerdomain.ErrInactive)
			return
		}

		s.setActor(c, actor)
		c.Next()
	}
}

// RequirePermission gates a route on the actor's role.
func (s *Server) RequirePermission(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) setActor(c *gin.Context, actor customerdomain.Customer) {
	ctx := obscontext.WithActor(c.Request.Context(), actorType(actor.Role), actor.ID.String())
	c.Request = c.Request.WithContext(ctx)
	c.Set(contextActorKey, actor)
}

func actorFromContext(c *gin.Context) (customerdomain.Customer, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return customerdomain.Customer{}, false
	}
	actor, ok := value.(customerdomain.Customer)
	return actor, ok && actor.ID != 0
}

// authorizeCustomerAccess resolves ref and lets the actor through when the
// target is the actor itself (ownAction) or the actor holds staffAction.
func (s *Server) authorizeCustomerAccess(c *gin.Context, ref, object, ownAction, staffAction string) (customerdomain.Customer, error) {
	actor, ok := actorFromContext(c)
	if !ok {
		return customerdomain.Customer{}, ErrUnauthorized
	}
	ctx := c.Request.Context()

	target, err := s.customerSvc.ResolveCustomer(ctx, ref)
	if err != nil {
		return customerdomain.Customer{}, err
	}
	action := staffAction
	if target.ID == actor.ID {
		action = ownAction
	}
	if err := s.authzSvc.Authorize(ctx, actor, object, action); err != nil {
		return customerdomain.Customer{}, err
	}
	return target, nil
}

func actorType(role customerdomain.Role) string {
	switch role {
	case customerdomain.RoleAdmin:
		return string(auditdomain.ActorTypeAdmin)
	case customerdomain.RoleCashier:
		return string(auditdomain.ActorTypeCashier)
	default:
		return string(auditdomain.ActorTypeCustomer)
	}
}
