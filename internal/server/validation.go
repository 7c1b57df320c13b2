package server

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const linkedInURLTag = "linkedinurl"

var (
	registerOnce sync.Once
	registerErr  error
)

// registerValidators configures gin's shared validator: JSON field names in errors and the
// linkedinurl tag.
func registerValidators() error {
	registerOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		registerErr = engine.RegisterValidation(linkedInURLTag, func(fl validator.FieldLevel) bool {
			return users.IsLinkedInURL(strings.TrimSpace(fl.Field().String()))
		})
	})
	return registerErr
}

// validationDetails maps binding errors to field messages.
func validationDetails(err error) map[string]string {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return map[string]string{"payload": "request body is required"}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return map[string]string{"payload": "invalid json"}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"payload": "invalid payload"}
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		details[fieldErr.Field()] = fieldMessage(fieldErr)
	}
	return details
}

func fieldMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fieldErr.Param() + " characters long"
	case "max":
		return "must be at most " + fieldErr.Param() + " characters long"
	case linkedInURLTag:
		return "must be a valid LinkedIn URL"
	default:
		return "is invalid"
	}
}
