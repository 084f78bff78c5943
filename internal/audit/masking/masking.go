package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"phone":        {},
	"phone_number": {},
	"email":        {},
	"name":         {},
	"uid":          {},
}

// MaskValue redacts a value while keeping the last four characters.
func MaskValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of input with personal fields masked.
// Nested maps are walked; other values are copied as-is.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		out[trimmedKey] = maskField(trimmedKey, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func maskField(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			return MaskValue(cast)
		}
		return cast
	case map[string]any:
		return MaskSensitive(cast)
	case []any:
		items := make([]any, 0, len(cast))
		for _, item := range cast {
			items = append(items, maskField(key, item))
		}
		return items
	default:
		return value
	}
}
