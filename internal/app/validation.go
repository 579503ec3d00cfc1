package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/admitcast/internal/domain/model"
)

const nonBlankTag = "nonblank"

var validate = mustValidator()

func mustValidator() *validator.Validate {
	v, err := newValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	// Report JSON field names so errors match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation(nonBlankTag, nonBlank); err != nil {
		return nil, fmt.Errorf("failed to register %s validation: %w", nonBlankTag, err)
	}
	return v, nil
}

func nonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateStruct runs struct validation and converts the first failure into
// a *model.ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &model.ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	return &model.ValidationError{Field: fe.Field(), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case nonBlankTag:
		return "must not be blank"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
