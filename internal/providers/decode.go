package providers

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// DecodeJSON unmarshals a provider response into v and validates it against
// its struct tags. Any mismatch is a *ParseError.
func DecodeJSON(provider, operation string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &ParseError{Provider: provider, Operation: operation, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	target := reflect.Indirect(reflect.ValueOf(v))
	var err error
	switch target.Kind() {
	case reflect.Struct:
		err = validate.Struct(v)
	case reflect.Slice, reflect.Map:
		err = validate.Var(target.Interface(), "dive")
	}
	if err != nil {
		return &ParseError{Provider: provider, Operation: operation, Err: fmt.Errorf("validation failed: %w", err)}
	}
	return nil
}
