package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose values never reach the audit table in clear.
var SensitiveKeys = map[string]struct{}{
	"email":    {},
	"phone":    {},
	"password": {},
	"token":    {},
}

// Mask redacts a contact value while keeping its last two characters so entries can
// still be told apart.
func Mask(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if at := strings.LastIndex(trimmed, "@"); at > 0 {
		return maskToken + trimmed[at:]
	}
	if len(trimmed) <= 2 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-2:]
}

// MaskMetadata returns a copy of metadata with sensitive values masked, recursing into
// nested maps. Empty keys are dropped.
func MaskMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}

	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = MaskMetadata(nested)
			continue
		}
		if _, sensitive := SensitiveKeys[strings.ToLower(key)]; sensitive {
			if s, ok := value.(string); ok {
				out[key] = Mask(s)
				continue
			}
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
