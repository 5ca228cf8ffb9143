package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names, not Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// validateStruct runs the `validate` tags of v and converts failures into
// an ErrValidation error naming the first offending field.
func validateStruct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return newError(ErrValidation, err, "invalid input")
	}
	return newError(ErrValidation, nil, "%s", describeFieldError(verrs[0]))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s element(s)", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt", "gte", "lt", "lte":
		ops := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}
		return fmt.Sprintf("%s must be %s %s", field, ops[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// decodeInput unmarshals body over a defaults-populated value and validates
// it. Unknown fields (such as an async priority) are ignored.
func decodeInput[In Input](body []byte, defaults func() In) (In, error) {
	in := defaults()
	if len(strings.TrimSpace(string(body))) == 0 {
		var zero In
		return zero, newError(ErrValidation, nil, "request body is required")
	}
	if err := json.Unmarshal(body, in); err != nil {
		var zero In
		return zero, newError(ErrValidation, err, "malformed request body")
	}
	if err := in.Validate(); err != nil {
		var zero In
		return zero, err
	}
	return in, nil
}
