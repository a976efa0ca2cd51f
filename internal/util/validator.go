package util

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/citywatch/api/internal/apperr"
)

var phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	return v
}

// ValidPhone accepts ten-digit mobile numbers starting with 6-9.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidateStruct runs tag validation and reports the first failure as BadRequest.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.BadRequest(describe(verrs[0]))
	}
	return apperr.BadRequest("invalid payload")
}

// RequireString fails with BadRequest when value is blank.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.BadRequest(field + " is required")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must have at least " + fe.Param() + " characters"
	case "max":
		return field + " must have at most " + fe.Param() + " characters"
	case "phone":
		return "invalid phone number"
	case "email":
		return "invalid email"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "len":
		return field + " must have " + fe.Param() + " characters"
	case "numeric":
		return field + " must be numeric"
	default:
		return field + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
