package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/quotaguard/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "quotaguard/http"

// Rejections are expected outcomes of a sale attempt. They are recorded as
// span events so they do not inflate error rates.
var rejectionTypes = map[string]bool{
	"quota_exceeded":     true,
	"insufficient_stock": true,
}

// GinMiddleware opens a server span per request. classify maps a handler
// error to its response type and may be nil.
func GinMiddleware(classify func(error) (string, string)) gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		}
		// The actor is only known after authentication ran.
		if actorType, actorID := obscontext.ActorFromContext(c.Request.Context()); actorType != "" {
			attrs = append(attrs,
				attribute.String("quotaguard.actor_type", actorType),
				attribute.String("quotaguard.actor_id", actorID),
			)
		}
		if receipt := c.GetString("receipt_number"); receipt != "" {
			attrs = append(attrs, attribute.String("quotaguard.receipt_number", receipt))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}
		if classify != nil {
			if kind, code := classify(lastErr.Err); rejectionTypes[kind] {
				span.AddEvent("sale.rejected", trace.WithAttributes(
					attribute.String("rejection.type", kind),
					attribute.String("rejection.code", code),
				))
				return
			}
		}
		if status >= http.StatusInternalServerError {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
