package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap masks values whose key looks like a credential. Nested
// maps and lists are walked.
func RedactSensitiveMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(values)
}

// RedactStrings masks headers and request parameters before they are logged.
func RedactStrings(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		if shouldRedactKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = value
	}
	return out
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"x-api-key",
		"cookie",
		"credential",
		"signature",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "entry_id",
		"event_id",
		"webhook_id",
		"record_id",
		"token_id",
		"action",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
