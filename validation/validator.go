package validation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kbukum/backendkit/errors"
)

// Validator collects errors and warnings for one configuration.
type Validator struct {
	errors   []FieldError
	warnings []FieldError
}

// FieldError is a problem with a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// Warn records a non-fatal finding.
func (v *Validator) Warn(field, message string) {
	v.warnings = append(v.warnings, FieldError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Messages renders the errors as "field: message" strings.
func (v *Validator) Messages() []string {
	return render(v.errors)
}

// Warnings renders the warnings as "field: message" strings.
func (v *Validator) Warnings() []string {
	return render(v.warnings)
}

// Error returns a configuration error for subject, or nil when no errors
// were recorded.
func (v *Validator) Error(subject string) *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	appErr := errors.Configuration(subject, strings.Join(v.Messages(), "; "))
	appErr.WithDetail("fields", slices.Clone(v.errors))
	return appErr
}

func render(fes []FieldError) []string {
	out := make([]string, len(fes))
	for i, fe := range fes {
		out[i] = fe.String()
	}
	return out
}

// Required checks a string is non-blank.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// RequiredSetting checks settings holds a non-empty value for key.
func (v *Validator) RequiredSetting(settings map[string]any, key string) *Validator {
	val, ok := settings[key]
	if !ok || val == nil {
		v.AddError("settings."+key, "is required")
		return v
	}
	if s, isStr := val.(string); isStr && strings.TrimSpace(s) == "" {
		v.AddError("settings."+key, "is required")
	}
	return v
}

// StringSetting checks an optional settings value is a string.
func (v *Validator) StringSetting(settings map[string]any, key string) *Validator {
	if val, ok := settings[key]; ok && val != nil {
		if _, isStr := val.(string); !isStr {
			v.AddError("settings."+key, "must be a string")
		}
	}
	return v
}

// DurationSetting checks an optional settings value parses as a duration.
func (v *Validator) DurationSetting(settings map[string]any, key string) *Validator {
	val, ok := settings[key]
	if !ok || val == nil {
		return v
	}
	switch d := val.(type) {
	case time.Duration:
	case string:
		if _, err := time.ParseDuration(d); err != nil {
			v.AddError("settings."+key, "must be a duration like 30s or 5m")
		}
	default:
		v.AddError("settings."+key, "must be a duration like 30s or 5m")
	}
	return v
}

// MinLength checks a string meets a minimum length.
func (v *Validator) MinLength(field, value string, minLen int) *Validator {
	if len(value) < minLen {
		v.AddError(field, fmt.Sprintf("must be at least %d characters", minLen))
	}
	return v
}

// Range checks a number is within [minVal, maxVal].
func (v *Validator) Range(field string, value, minVal, maxVal int) *Validator {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", minVal, maxVal))
	}
	return v
}

// OneOf checks a non-empty value is one of allowed.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" || slices.Contains(allowed, value) {
		return v
	}
	v.AddError(field, "must be one of: "+strings.Join(allowed, ", "))
	return v
}

// Custom records message when condition is false.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}
