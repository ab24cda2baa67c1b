package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xelth-com/commissariat/internal/apperrors"
)

var phoneRegex = regexp.MustCompile(`^((\+|00)[1-9]{1,4})?[ -]?([0-9]{2,4}[ -]?){3,5}[0-9]{2,4}$`)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom rules registered
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()

		// Report json names so messages match the API payloads
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = v.RegisterValidation("phone", validatePhone)
		instance = v
	})
	return instance
}

// Struct validates s and converts failures into an apperrors validation error
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation("invalid payload: %v", err)
	}

	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
		names = append(names, fe.Field())
	}
	return apperrors.ValidationFields("invalid fields: "+strings.Join(names, ", "), fields)
}

// IsPhone reports whether s matches the accepted phone number format
func IsPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

func validatePhone(fl validator.FieldLevel) bool {
	return IsPhone(fl.Field().String())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "phone":
		return "must be a valid phone number"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
