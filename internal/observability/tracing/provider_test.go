package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPersonalData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/transactions"),
		attribute.String("customer.phone", "+15550100"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsOutermostMessage(t *testing.T) {
	err := fmt.Errorf("persistence_failure: %w", errors.New("dial tcp 10.0.0.3:5432: refused"))
	assert.EqualError(t, SafeError(err), "persistence_failure")
	assert.Nil(t, SafeError(nil))
}
