package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quotaguard/internal/observability/logger"
	"github.com/smallbiznis/quotaguard/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonAPI     = "api-rate"
	rateLimitReasonSession = "session-rate"
	rateLimitReasonBilling = "billing-rate"
)

type allowFunc func(ctx context.Context, subject string) (ratelimit.Result, error)

// APIRateLimit budgets every /api request per client IP.
func (s *Server) APIRateLimit() gin.HandlerFunc {
	return s.rateLimit(rateLimitReasonAPI, s.limiter.AllowAPI, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// SessionRateLimit budgets identity syncs per client IP.
func (s *Server) SessionRateLimit() gin.HandlerFunc {
	return s.rateLimit(rateLimitReasonSession, s.limiter.AllowSession, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// BillingRateLimit budgets sale submissions per cashier. It must run after
// Authenticated.
func (s *Server) BillingRateLimit() gin.HandlerFunc {
	return s.rateLimit(rateLimitReasonBilling, s.limiter.AllowBilling, func(c *gin.Context) string {
		if actor, ok := actorFromContext(c); ok {
			return actor.UID
		}
		return c.ClientIP()
	})
}

func (s *Server) rateLimit(reason string, allow allowFunc, subject func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := allow(ctx, subject(c))
		if err != nil {
			// Redis trouble must not take the till down.
			logger.WithContext(ctx, s.log).Warn("rate limit check failed",
				zap.String("reason", reason),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			denyRateLimit(c, s.log, reason, result)
			return
		}
		c.Next()
	}
}

func denyRateLimit(c *gin.Context, base *zap.Logger, reason string, result ratelimit.Result) {
	log := logger.WithContext(c.Request.Context(), base)
	log.Warn("rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", normalizeRateLimitEndpoint(c)),
	)

	retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
