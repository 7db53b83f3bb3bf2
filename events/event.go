package events

import (
	"maps"
	"time"
)

// Type identifies what happened.
type Type string

const (
	ProviderRegistered      Type = "provider_registered"
	ProviderUnregistered    Type = "provider_unregistered"
	ProviderStarted         Type = "provider_started"
	ProviderStopped         Type = "provider_stopped"
	ProviderFailed          Type = "provider_failed"
	ProviderHealthChanged   Type = "provider_health_changed"
	ProviderConfigUpdated   Type = "provider_config_updated"
	MetricsCollectionFailed Type = "metrics_collection_failed"
)

// Types lists every built-in event type.
var Types = []Type{
	ProviderRegistered, ProviderUnregistered, ProviderStarted, ProviderStopped,
	ProviderFailed, ProviderHealthChanged, ProviderConfigUpdated, MetricsCollectionFailed,
}

// Severity grades an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Severity returns the default severity for t.
func (t Type) Severity() Severity {
	switch t {
	case ProviderFailed:
		return SeverityError
	case ProviderHealthChanged, MetricsCollectionFailed:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Event is an immutable record. Values handed out by the bus are copies.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	ProviderID string         `json:"provider_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Severity   Severity       `json:"severity"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (e Event) clone() Event {
	e.Data = maps.Clone(e.Data)
	return e
}
