package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	initOnce sync.Once
	instance *validator.Validate
)

// FieldError describes one failed validation rule on one field.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationErrors is the set of failures produced by ValidateStruct.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	var b strings.Builder
	for i, fe := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Field)
		b.WriteString(" failed on ")
		b.WriteString(fe.Tag)
		if fe.Param != "" {
			b.WriteString("=")
			b.WriteString(fe.Param)
		}
	}
	return b.String()
}

// ValidateStruct runs the shared validator against s, translating failures
// into ValidationErrors keyed by json field names.
func ValidateStruct(s any) error {
	err := shared().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, FieldError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

// RegisterValidation installs a custom rule on the shared validator.
func RegisterValidation(tag string, fn validator.Func) error {
	return shared().RegisterValidation(tag, fn)
}

func shared() *validator.Validate {
	initOnce.Do(func() {
		instance = validator.New()
		instance.RegisterTagNameFunc(jsonFieldName)
	})
	return instance
}

func jsonFieldName(fld reflect.StructField) string {
	name := fld.Tag.Get("json")
	if idx := strings.Index(name, ","); idx != -1 {
		name = name[:idx]
	}
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}
