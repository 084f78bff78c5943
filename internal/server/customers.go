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

func (s *Server) GetCustomer(c *gin.Context) {
	target, err := s.authorizeCustomerAccess(c, c.Param("ref"),
		authorization.ObjectCustomer,
		authorization.ActionCustomerViewOwn,
		authorization.ActionCustomerView,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": target})
}

type updateCustomerRequest struct {
	updateProfileRequest
	IDVerified *bool `json:"id_verified"`
}

// UpdateCustomer is the till-side profile edit, including ID verification.
func (s *Server) UpdateCustomer(c *gin.Context) {
	var req updateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	target, err := s.customerSvc.ResolveCustomer(ctx, c.Param("ref"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.customerSvc.UpdateProfile(ctx, target.ID, customerdomain.UpdateProfileRequest{
		Name:        trimPtr(req.Name),
		Email:       trimPtr(req.Email),
		PhoneNumber: trimPtr(req.PhoneNumber),
		DateOfBirth: dob,
		IDVerified:  req.IDVerified,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) SetCustomerRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	role, err := customerdomain.ParseRole(req.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	target, err := s.customerSvc.ResolveCustomer(ctx, c.Param("ref"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.customerSvc.SetRole(ctx, target.ID, role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := target.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionCustomerRoleSet, "customer", &targetID, map[string]any{
		"from": target.Role.String(),
		"to":   role.String(),
	}); err != nil {
		logger.WithContext(ctx, s.log).Warn("role change audit failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
