package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", MaskValue("  "))
	assert.Equal(t, "****", MaskValue("1234"))
	assert.Equal(t, "****3210", MaskValue("+919876543210"))
}

func TestMaskSensitiveOnlyTouchesPersonalFields(t *testing.T) {
	got := MaskSensitive(map[string]any{
		"phone":        "+15550100",
		"receipt":      "RCP202405010001",
		"requested_ml": int64(400),
		"customer": map[string]any{
			"email": "someone@example.com",
			"role":  "customer",
		},
		" ": "dropped",
	})

	assert.Equal(t, "****0100", got["phone"])
	assert.Equal(t, "RCP202405010001", got["receipt"])
	assert.Equal(t, int64(400), got["requested_ml"])
	assert.Equal(t, map[string]any{"email": "****.com", "role": "customer"}, got["customer"])
	assert.NotContains(t, got, " ")
	assert.Nil(t, MaskSensitive(nil))
}
