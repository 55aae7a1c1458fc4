package dhl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidShipment matches any *ValidationError.
var ErrInvalidShipment = errors.New("invalid shipment request")

var validate = newValidator()

func newValidator() func(any) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	return func(s any) error {
		if err := v.Struct(s); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				return &ValidationError{Errors: fieldErrs}
			}
			return err
		}
		return nil
	}
}

// ValidationError lists the shipment fields that failed validation.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", fe.Namespace(), msgForTag(fe)))
	}
	return "invalid shipment request: " + strings.Join(msgs, "; ")
}

// Is reports whether target is ErrInvalidShipment.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidShipment
}

// Fields maps each failing field to a readable message.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fe.Namespace()] = msgForTag(fe)
	}
	return fields
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
