package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quotaguard/internal/authorization"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
)

type syncSessionRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// SyncSession registers the gateway identity on first sight and returns the
// stored profile.
func (s *Server) SyncSession(c *gin.Context) {
	uid := strings.TrimSpace(c.GetHeader(HeaderUserUID))
	if uid == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req syncSessionRequest
	// The profile body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	customer, created, err := s.customerSvc.EnsureUser(c.Request.Context(), customerdomain.EnsureUserRequest{
		UID:         uid,
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !customer.IsActive {
		AbortWithError(c, customerdomain.ErrInactive)
		return
	}

	s.setActor(c, customer)
	if err := s.authzSvc.Authorize(c.Request.Context(), customer, authorization.ObjectSession, authorization.ActionSessionSync); err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": customer, "created": created})
}

func (s *Server) GetMe(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": actor})
}

type updateProfileRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	DateOfBirth *string `json:"date_of_birth"`
}

func (s *Server) UpdateMe(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.customerSvc.UpdateProfile(c.Request.Context(), actor.ID, customerdomain.UpdateProfileRequest{
		Name:        trimPtr(req.Name),
		Email:       trimPtr(req.Email),
		PhoneNumber: trimPtr(req.PhoneNumber),
		DateOfBirth: dob,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseDateOfBirth(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := parseOptionalTime(*value, false)
	if err != nil || parsed == nil {
		return nil, newValidationError("date_of_birth", "invalid_date_of_birth", "invalid date_of_birth")
	}
	return parsed, nil
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
