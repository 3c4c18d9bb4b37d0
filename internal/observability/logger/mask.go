package logger

import "strings"

// Keys whose values never appear unmasked in log output.
var sensitiveKeys = []string{
	"wallet",
	"wallet_address",
	"payment_proof",
	"signature",
	"secret",
	"token",
	"authorization",
}

// MaskWallet shortens a wallet address to its first and last four
// characters, e.g. "7xKX…9AsU". Addresses are pseudonymous but still
// correlate a payer across log lines, so they are never logged whole.
func MaskWallet(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "…" + value[len(value)-4:]
}

// MaskJSON returns a copy of the map with sensitive values masked,
// descending into nested maps.
func MaskJSON(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	masked := make(map[string]any, len(input))
	for key, value := range input {
		switch typed := value.(type) {
		case map[string]any:
			masked[key] = MaskJSON(typed)
		case string:
			if isSensitiveKey(key) {
				masked[key] = MaskWallet(typed)
			} else {
				masked[key] = typed
			}
		default:
			masked[key] = value
		}
	}
	return masked
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}
