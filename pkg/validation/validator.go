// Package validation wraps go-playground/validator with the custom
// rules used across StateGraph configuration structs.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator instance.
var Validate *validator.Validate

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func init() {
	Validate = validator.New()

	Validate.RegisterValidation("field_name", validateFieldName)
	Validate.RegisterValidation("node_name", validateNodeName)

	// Report fields by their JSON names, matching what callers wrote.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates the failures of one struct.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct validates a tagged struct and returns ValidationErrors
// on failure.
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}

	var out ValidationErrors
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			out = append(out, ValidationError{
				Field:   fe.Field(),
				Value:   fe.Value(),
				Message: message(fe),
			})
		}
		return out
	}
	return err
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "field_name":
		return "must be a lowercase identifier (letters, digits, underscores)"
	case "node_name":
		return "must be a valid node name (alphanumeric, underscore, hyphen)"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

// validateFieldName accepts state field names: lowercase snake case.
func validateFieldName(fl validator.FieldLevel) bool {
	return fieldNamePattern.MatchString(fl.Field().String())
}

// validateNodeName accepts graph node names.
func validateNodeName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || len(name) > 100 {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, name)
	return matched
}
