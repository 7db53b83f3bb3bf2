package validation

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/backendkit/errors"
)

var (
	validate *validator.Validate
	once     sync.Once

	providerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return toSnakeCase(fld.Name)
			}
			return name
		})
		_ = validate.RegisterValidation("provider_name", func(fl validator.FieldLevel) bool {
			return providerNamePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s using its `validate` tags. Failures are reported as a
// configuration error for subject with one entry per field in Details.
func Struct(subject string, s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Configuration(subject, err.Error())
	}

	v := New()
	for _, e := range verrs {
		v.AddError(e.Field(), formatValidationError(e))
	}
	return v.Error(subject)
}

// ValidProviderName reports whether name can be used as a provider name.
func ValidProviderName(name string) bool {
	return providerNamePattern.MatchString(name)
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "provider_name":
		return "must start with a letter or digit and contain only letters, digits, '.', '_' or '-'"
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "dive":
		return "contains an invalid entry"
	default:
		return "is invalid"
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
