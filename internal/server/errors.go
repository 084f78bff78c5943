package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/authorization"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/internal/idempotency"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/quotaguard/internal/order/domain"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Business rejections carry enough detail for the till to explain them.
	var quotaErr *quotadomain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return http.StatusForbidden, errorPayload{
			Type:    "quota_exceeded",
			Message: "Daily alcohol quota exceeded",
			Details: map[string]any{
				"limit":           config.MLToLiters(quotaErr.LimitML),
				"consumed":        config.MLToLiters(quotaErr.ConsumedML),
				"remaining":       config.MLToLiters(quotaErr.RemainingML),
				"requestedVolume": config.MLToLiters(quotaErr.RequestedML),
				"limit_ml":        quotaErr.LimitML,
				"consumed_ml":     quotaErr.ConsumedML,
				"remaining_ml":    quotaErr.RemainingML,
				"requested_ml":    quotaErr.RequestedML,
			},
		}
	}

	var stockErr *inventorydomain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_stock",
			Message: "insufficient stock",
			Details: map[string]any{
				"product_id": stockErr.ProductID.String(),
				"barcode":    stockErr.Barcode,
				"available":  stockErr.Available,
				"requested":  stockErr.Requested,
			},
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, customerdomain.ErrInactive):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, quotadomain.ErrQuotaExceeded):
		return http.StatusForbidden, errorPayload{
			Type:    "quota_exceeded",
			Message: "Daily alcohol quota exceeded",
		}
	case errors.Is(err, inventorydomain.ErrInsufficientStock):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_stock",
			Message: "insufficient stock",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, billingdomain.ErrPersistence):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	switch {
	case len(payload.Errors) > 0:
		code = payload.Errors[0].Code
	case payload.Type == "not_found", payload.Type == "conflict":
		code = rootCode(err)
	}
	return payload.Type, code
}

func rootCode(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		msg = msg[:idx]
	}
	return strings.TrimSpace(msg)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, idempotency.ErrInvalidKey):
		return true
	case isCustomerValidationError(err),
		isProductValidationError(err),
		isQuotaValidationError(err),
		isBillingValidationError(err),
		isOrderValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isCustomerValidationError(err error) bool {
	switch {
	case errors.Is(err, customerdomain.ErrInvalidRole),
		errors.Is(err, customerdomain.ErrInvalidUID),
		errors.Is(err, customerdomain.ErrInvalidRef),
		errors.Is(err, customerdomain.ErrInvalidEmail):
		return true
	default:
		return false
	}
}

func isProductValidationError(err error) bool {
	switch {
	case errors.Is(err, productdomain.ErrInvalidName),
		errors.Is(err, productdomain.ErrInvalidBarcode),
		errors.Is(err, productdomain.ErrInvalidCategory),
		errors.Is(err, productdomain.ErrInvalidVolume),
		errors.Is(err, productdomain.ErrInvalidAlcoholContent),
		errors.Is(err, productdomain.ErrInvalidPrice),
		errors.Is(err, productdomain.ErrInvalidStock),
		errors.Is(err, inventorydomain.ErrInvalidQuantity):
		return true
	default:
		return false
	}
}

func isQuotaValidationError(err error) bool {
	switch {
	case errors.Is(err, quotadomain.ErrInvalidVolume),
		errors.Is(err, quotadomain.ErrInvalidDays):
		return true
	default:
		return false
	}
}

func isBillingValidationError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrEmptyItems),
		errors.Is(err, billingdomain.ErrInvalidItem),
		errors.Is(err, billingdomain.ErrInvalidPaymentMethod),
		errors.Is(err, billingdomain.ErrInvalidDiscount),
		errors.Is(err, billingdomain.ErrInvalidRefundReason),
		errors.Is(err, billingdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isOrderValidationError(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrEmptyItems),
		errors.Is(err, orderdomain.ErrInvalidItem),
		errors.Is(err, orderdomain.ErrInvalidStatus),
		errors.Is(err, orderdomain.ErrInvalidReason),
		errors.Is(err, orderdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, productdomain.ErrDuplicateBarcode),
		errors.Is(err, billingdomain.ErrAlreadyRefunded),
		errors.Is(err, billingdomain.ErrNotRefundable),
		errors.Is(err, billingdomain.ErrIdempotencyKeyConflict),
		errors.Is(err, billingdomain.ErrConcurrencyConflict),
		errors.Is(err, idempotency.ErrInFlight),
		errors.Is(err, orderdomain.ErrInvalidTransition):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, billingdomain.ErrAlreadyRefunded):
		return "transaction already refunded"
	case errors.Is(err, billingdomain.ErrNotRefundable):
		return "transaction cannot be refunded"
	case errors.Is(err, billingdomain.ErrIdempotencyKeyConflict):
		return "idempotency key was used for a different request"
	case errors.Is(err, idempotency.ErrInFlight):
		return "a request with this idempotency key is in progress"
	case errors.Is(err, billingdomain.ErrConcurrencyConflict):
		return "concurrent update, retry the request"
	case errors.Is(err, orderdomain.ErrInvalidTransition):
		return "order status transition not allowed"
	case errors.Is(err, productdomain.ErrDuplicateBarcode):
		return "barcode already registered"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrCashierNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, quotadomain.ErrQuotaNotFound),
		errors.Is(err, billingdomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, customerdomain.ErrNotFound):
		return "customer not found"
	case errors.Is(err, customerdomain.ErrCashierNotFound):
		return "cashier not found"
	case errors.Is(err, productdomain.ErrNotFound):
		return "product not found"
	case errors.Is(err, billingdomain.ErrNotFound):
		return "transaction not found"
	case errors.Is(err, orderdomain.ErrNotFound):
		return "order not found"
	default:
		return "not found"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return rootCode(err)
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "order_invalid_") {
		return strings.TrimPrefix(code, "order_invalid_")
	}
	switch code {
	case "empty_items", "order_empty_items":
		return "items"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_items", "order_empty_items":
		return "at least one item is required"
	default:
		return "invalid value"
	}
}
