package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceiptProducesPDF(t *testing.T) {
	r, err := New().GenerateReceipt(context.Background(), ReceiptData{
		StoreName:     "QuotaGuard",
		ReceiptNumber: "RCP202405010001",
		SoldAt:        "2024-05-01 09:00",
		Items: []ReceiptItem{
			{Description: "Kingfisher Premium", Qty: 1, Volume: "0.650 L", UnitPrice: "180.00", Amount: "180.00"},
		},
		Total: "180.00",
	})
	require.NoError(t, err)

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestGenerateReceiptRequiresNumber(t *testing.T) {
	_, err := New().GenerateReceipt(context.Background(), ReceiptData{})
	assert.Error(t, err)
}
