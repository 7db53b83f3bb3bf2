package logger

import (
	"strings"
	"time"
)

// Standard field keys.
const (
	FieldComponent    = "component"
	FieldTraceID      = "trace_id"
	FieldSpanID       = "span_id"
	FieldRequestID    = "request_id"
	FieldProvider     = "provider"
	FieldProviderType = "provider_type"
	FieldFactory      = "factory"
	FieldDependency   = "dependency"
	FieldService      = "service"
	FieldEvent        = "event"
	FieldOperation    = "operation"
	FieldStatus       = "status"
	FieldAttempt      = "attempt"
	FieldError        = "error"
	FieldDuration     = "duration_ms"
)

// RedactedValue replaces secret values in log output and exports.
const RedactedValue = "[REDACTED]"

var sensitiveKeyParts = []string{"secret", "password", "token", "key", "credential", "dsn"}

// Fields builds a field map from alternating key-value pairs.
//
//	logger.Info("done", logger.Fields("op", "start", "attempt", 2))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ProviderFields tags a record with a provider name and type.
func ProviderFields(name, providerType string) map[string]interface{} {
	return map[string]interface{}{
		FieldProvider:     name,
		FieldProviderType: providerType,
	}
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}

// MergeWithError adds an error field to an existing map.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields[FieldError] = err.Error()
	}
	return fields
}

// MergeWithDuration adds a duration field to an existing map.
func MergeWithDuration(fields map[string]interface{}, d time.Duration) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldDuration] = d.Milliseconds()
	return fields
}

// IsSensitiveKey reports whether a settings key looks like it holds a secret.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// Redact returns a copy of fields with sensitive values masked.
// Nested maps are redacted recursively.
func Redact(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch {
		case IsSensitiveKey(k):
			out[k] = RedactedValue
		default:
			if nested, ok := v.(map[string]interface{}); ok {
				out[k] = Redact(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}
