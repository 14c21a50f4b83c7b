// Package validate checks struct tags with go-playground/validator and turns
// failures into a map of JSON field name → human readable message.
//
//	type Input struct {
//	    Email string  `json:"email" validate:"required,email"`
//	    Qty   float64 `json:"quantity_kg" validate:"required,gt=0"`
//	}
//	errs := validate.Struct(in)   // map[string]string, empty when valid
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once sync.Once
	v    *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() != reflect.String {
				return true
			}
			return strings.TrimSpace(f.String()) != ""
		})
	})
	return v
}

// Engine exposes the shared validator for callers that need custom rules.
func Engine() *validator.Validate { return engine() }

// Struct validates s and returns field → message. The map is empty when s is valid.
func Struct(s interface{}) map[string]string {
	errs := make(map[string]string)

	err := engine().Struct(s)
	if err == nil {
		return errs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: s was not a struct.
		return errs
	}

	for _, fe := range verrs {
		name := fe.Field()
		if _, seen := errs[name]; seen {
			continue
		}
		errs[name] = message(fe)
	}
	return errs
}

// Var validates a single value against a tag, e.g. Var(email, "required,email").
func Var(field string, value interface{}, tag string) map[string]string {
	errs := make(map[string]string)
	var verrs validator.ValidationErrors
	if err := engine().Var(value, tag); errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		errs[field] = strings.Replace(message(fe), "The  ", "The "+field+" ", 1)
	}
	return errs
}

// HasErrors reports whether errs holds any failures.
func HasErrors(errs map[string]string) bool { return len(errs) > 0 }

func message(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()
	isString := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required", "required_if", "required_without", "notblank":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "url", "http_url":
		return fmt.Sprintf("The %s must be a valid URL.", field)
	case "uuid", "uuid4":
		return fmt.Sprintf("The %s must be a valid UUID.", field)
	case "e164":
		return fmt.Sprintf("The %s must be a phone number in international format.", field)
	case "min":
		if isString {
			return fmt.Sprintf("The %s must be at least %s characters.", field, param)
		}
		return fmt.Sprintf("The %s must be at least %s.", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("The %s must not exceed %s characters.", field, param)
		}
		return fmt.Sprintf("The %s must not be greater than %s.", field, param)
	case "len":
		return fmt.Sprintf("The %s must be exactly %s characters.", field, param)
	case "gt":
		return fmt.Sprintf("The %s must be greater than %s.", field, param)
	case "gte":
		return fmt.Sprintf("The %s must be greater than or equal to %s.", field, param)
	case "lt":
		return fmt.Sprintf("The %s must be less than %s.", field, param)
	case "lte":
		return fmt.Sprintf("The %s must be less than or equal to %s.", field, param)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid. Allowed: %s.", field, strings.ReplaceAll(param, " ", ", "))
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match.", field)
	case "nefield":
		return fmt.Sprintf("The %s must differ from %s.", field, param)
	case "alphanum":
		return fmt.Sprintf("The %s field must contain only letters and numbers.", field)
	case "numeric":
		return fmt.Sprintf("The %s field must be a number.", field)
	default:
		return fmt.Sprintf("The %s is invalid (%s).", field, fe.Tag())
	}
}
