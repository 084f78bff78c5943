package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsEnvelope(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("IST", 19800))
	ev, err := New(TypeSaleCommitted, "42", at, map[string]any{"receipt_number": "RCP202405010001"})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 1, ev.Version)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.JSONEq(t, `{"receipt_number":"RCP202405010001"}`, string(ev.Payload))
}

func TestToMessageCarriesHeadersAndKey(t *testing.T) {
	ev, err := New(TypeQuotaExceeded, "7", time.Now(), struct{}{})
	require.NoError(t, err)

	msg, err := toMessage(ev)
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "x-event-type", msg.Headers[0].Key)
	assert.Equal(t, []byte(TypeQuotaExceeded), msg.Headers[0].Value)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
}
