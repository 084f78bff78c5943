package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatReceiptNumberDefault(t *testing.T) {
	at := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	got, err := FormatReceiptNumber(DefaultReceiptNumberTemplate, at, 7)
	require.NoError(t, err)
	assert.Equal(t, "RCP202405010007", got)

	wide, err := FormatReceiptNumber(DefaultReceiptNumberTemplate, at, 12345)
	require.NoError(t, err)
	assert.Equal(t, "RCP2024050112345", wide)
}

func TestFormatReceiptNumberTokens(t *testing.T) {
	at := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	got, err := FormatReceiptNumber("S-{YY}{MM}{DD}-{SEQ}", at, 42)
	require.NoError(t, err)
	assert.Equal(t, "S-240109-42", got)
}

func TestFormatReceiptNumberErrors(t *testing.T) {
	at := time.Now()
	_, err := FormatReceiptNumber("", at, 1)
	assert.Error(t, err)
	_, err = FormatReceiptNumber(DefaultReceiptNumberTemplate, at, 0)
	assert.Error(t, err)
	_, err = FormatReceiptNumber("RCP{HH}{SEQ4}", at, 1)
	assert.Error(t, err)
}

func TestSequenceDayUsesLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2024, 4, 30, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "20240501", SequenceDay(at, ist))
	assert.Equal(t, "20240430", SequenceDay(at, time.UTC))
}
