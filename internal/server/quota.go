package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/authorization"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) GetMyQuota(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	s.respondQuota(c, actor)
}

func (s *Server) GetMyQuotaHistory(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	s.respondQuotaHistory(c, actor)
}

func (s *Server) GetCustomerQuota(c *gin.Context) {
	target, err := s.authorizeCustomerAccess(c, c.Param("ref"),
		authorization.ObjectQuota,
		authorization.ActionQuotaViewOwn,
		authorization.ActionQuotaView,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondQuota(c, target)
}

func (s *Server) GetCustomerQuotaHistory(c *gin.Context) {
	target, err := s.authorizeCustomerAccess(c, c.Param("ref"),
		authorization.ObjectQuota,
		authorization.ActionQuotaViewOwn,
		authorization.ActionQuotaView,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondQuotaHistory(c, target)
}

// ResetCustomerQuota zeroes today's consumption. Past days are untouched.
func (s *Server) ResetCustomerQuota(c *gin.Context) {
	ctx := c.Request.Context()
	target, err := s.customerSvc.ResolveCustomer(ctx, c.Param("ref"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	before, err := s.quotaSvc.Check(ctx, target.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	snapshot, err := s.quotaSvc.Reset(ctx, target.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := target.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionQuotaReset, "customer", &targetID, map[string]any{
		"day":         snapshot.Day,
		"consumed_ml": before.ConsumedML,
		"scope":       "manual",
	}); err != nil {
		logger.WithContext(ctx, s.log).Warn("quota reset audit failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) ListExceededQuotas(c *gin.Context) {
	resp, err := s.quotaSvc.ExceedingLimit(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) respondQuota(c *gin.Context, customer customerdomain.Customer) {
	snapshot, err := s.quotaSvc.Check(c.Request.Context(), customer.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) respondQuotaHistory(c *gin.Context, customer customerdomain.Customer) {
	days := s.policy.Get().HistoryDays
	parsed, err := parseOptionalInt(c.Query("days"))
	if err != nil {
		AbortWithError(c, newValidationError("days", "invalid_days", "invalid days"))
		return
	}
	if parsed != nil {
		days = *parsed
	}

	history, err := s.quotaSvc.History(c.Request.Context(), customer.ID, days)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}
