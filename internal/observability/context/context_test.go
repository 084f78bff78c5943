package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationValuesRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithActor(ctx, "cashier", "42")
	ctx = WithIPAddress(ctx, "10.0.0.1")
	ctx = WithUserAgent(ctx, "pos/1.0")

	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "cashier", actorType)
	assert.Equal(t, "42", actorID)
	assert.Equal(t, "10.0.0.1", IPAddressFromContext(ctx))
	assert.Equal(t, "pos/1.0", UserAgentFromContext(ctx))
}

func TestMissingValuesAreEmpty(t *testing.T) {
	actorType, actorID := ActorFromContext(context.Background())
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, actorType)
	assert.Empty(t, actorID)
}
