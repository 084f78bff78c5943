package service

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReservedLinesField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	lines := []inventorydomain.Line{
		{ProductID: snowflake.ID(11), Quantity: 2},
		{ProductID: snowflake.ID(12), Quantity: 1},
	}
	log.Debug("reservation released", zap.Array("lines", reservedLines(lines)))

	require.Equal(t, 1, logs.Len())
	got := logs.All()[0].ContextMap()["lines"]
	assert.Equal(t, []interface{}{
		map[string]interface{}{"product_id": "11", "quantity": int64(2)},
		map[string]interface{}{"product_id": "12", "quantity": int64(1)},
	}, got)
}
