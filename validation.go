package interop

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator caches struct metadata per type.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so messages match what the caller wrote.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateConfig decodes a JSON object into target and validates it with
// its `validate` struct tags. Unknown keys are rejected. Fields absent from
// data keep the values target already holds.
func ValidateConfig(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if dec.More() {
		return errors.New("failed to unmarshal config: trailing data after object")
	}
	return ValidateStruct(target)
}

// ValidateStruct runs the struct tag validation alone.
func ValidateStruct(target any) error {
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("config validation failed: %w", describeValidation(err))
	}
	return nil
}

// describeValidation rewrites validator output as one line per field.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: failed %q (got %v)", fe.Field(), rule, fe.Value()))
	}
	return errors.New(strings.Join(parts, "; "))
}
