package types

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// validateSnapshot checks a JSON sub-object before it is persisted.
func validateSnapshot(kind string, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}
