package http

import (
	"errors"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

var reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)

// customRules are the deferral-specific tags on top of the validator builtins.
var customRules = map[string]validator.Func{
	// user and customer ids are 32-char lowercase hex
	"hex32": func(fl validator.FieldLevel) bool {
		return reHex32.MatchString(fl.Field().String())
	},
	// money: at most 2 decimal places
	"dec2": func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return math.Abs(f-math.Round(f*100)/100) < 1e-9
	},
	// rejects whitespace-only strings that slip past "required"
	"notblank": func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	},
}

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	for tag, fn := range customRules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic("register " + tag + ": " + err.Error())
		}
	}
	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// jsonName reports fields by their json key so clients can match errors to the payload.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

var messages = map[string]func(validator.FieldError) string{
	"required": func(validator.FieldError) string { return "is required" },
	"notblank": func(validator.FieldError) string { return "must not be blank" },
	"hex32":    func(validator.FieldError) string { return "must be 32-char lowercase hex" },
	"dec2":     func(validator.FieldError) string { return "must have at most 2 decimal places" },
	"email":    func(validator.FieldError) string { return "must be a valid email address" },
	"url":      func(validator.FieldError) string { return "must be a valid URL" },
	"gte":      func(e validator.FieldError) string { return "must be greater than or equal to " + e.Param() },
	"lte":      func(e validator.FieldError) string { return "must be less than or equal to " + e.Param() },
	"min":      func(e validator.FieldError) string { return "must have at least " + e.Param() + " " + unit(e) },
	"max":      func(e validator.FieldError) string { return "must have at most " + e.Param() + " " + unit(e) },
}

func unit(e validator.FieldError) string {
	switch e.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return "item(s)"
	case reflect.String:
		return "characters"
	}
	return ""
}

// ToFieldErrors turns validator output into readable per-field messages.
func ToFieldErrors(err error) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		msg := e.Tag() + " validation failed"
		if m, ok := messages[e.Tag()]; ok {
			msg = strings.TrimSpace(m(e))
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}
