package core

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const RedactedValue = "[REDACTED]"

const defaultPayloadPreviewBytes = 2048

func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

// PayloadPreview renders a raw delivery body for logs: sensitive keys are
// redacted when the body is JSON, and the result is cut at limit bytes.
func PayloadPreview(raw []byte, limit int) string {
	if limit <= 0 {
		limit = defaultPayloadPreviewBytes
	}
	if len(raw) == 0 {
		return ""
	}
	text := string(raw)
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if encoded, err := json.Marshal(redactSensitiveValue(decoded)); err == nil {
			text = string(encoded)
		}
	} else if !utf8.Valid(raw) {
		return "<binary payload>"
	}
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "...(truncated)"
}

func redactSensitiveMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = RedactedValue
		if !shouldRedactKey(key) {
			out[key] = redactSensitiveValue(value)
		}
	}
	return out
}

// redactSensitiveValue walks decoded JSON; scalars pass through.
func redactSensitiveValue(value any) any {
	if nested, ok := value.(map[string]any); ok {
		return redactSensitiveMap(nested)
	}
	items, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, redactSensitiveValue(item))
	}
	return out
}

// sensitiveKeyParts match anywhere in a lower-cased key.
var sensitiveKeyParts = []string{
	"password", "secret", "token", "authorization", "api_key", "apikey",
	"cookie", "session", "credential", "signature",
}

// correlationKeys are never redacted even when they contain a sensitive part.
var correlationKeys = map[string]bool{
	"provider_id":    true,
	"delivery_id":    true,
	"job_id":         true,
	"snapshot_id":    true,
	"correlation_id": true,
	"trace_id":       true,
	"request_id":     true,
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || correlationKeys[key] {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
