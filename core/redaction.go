package core

import (
	"encoding/json"
	"strings"
)

const (
	RedactedValue       = "[REDACTED]"
	RedactedSecret      = "redacted"
	UnparseableBodyText = "[unparseable body]"
)

// RedactWebhookRequest returns a copy of req that is safe to log. A truthy
// top-level "secret" in the body is replaced and a body that is not a JSON
// object is replaced entirely. The signature is kept, it is public.
func RedactWebhookRequest(req WebhookRequest) WebhookRequest {
	out := req
	out.RawBody = RedactWebhookBody(req.RawBody)
	return out
}

func RedactWebhookBody(body string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload == nil {
		return UnparseableBodyText
	}
	if !truthy(payload["secret"]) {
		return body
	}
	payload["secret"] = RedactedSecret
	encoded, err := json.Marshal(payload)
	if err != nil {
		return UnparseableBodyText
	}
	return string(encoded)
}

func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0
	default:
		return true
	}
}

func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
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
	for _, token := range []string{"password", "secret", "token", "authorization", "api_key", "credential"} {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "serial",
		"signature_serial",
		"signature_algorithm",
		"extension_id",
		"instance_id",
		"context_id",
		"delivery_key",
		"request_id",
		"trace_id":
		return true
	default:
		return false
	}
}
