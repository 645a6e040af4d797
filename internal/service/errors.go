package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"infopos/backend/internal/store"
	"infopos/backend/internal/timestamp"
)

var (
	ErrUnknownEntity        = errors.New("unknown entity")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrMissingStoreID       = errors.New("store_id is required")
	ErrInvalidTimestamp     = timestamp.ErrInvalidTimestamp
	ErrStoreForbidden       = errors.New("store access denied")

	// ErrRecordValidation marks a pushed record rejected before it reached the store.
	ErrRecordValidation = errors.New("record validation failed")
)

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequiredField, name)
}

func invalidRecord(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRecordValidation, fmt.Sprintf(format, args...))
}

// isRecordError reports whether err belongs to one record rather than to the batch.
func isRecordError(err error) bool {
	return errors.Is(err, ErrRecordValidation) || errors.Is(err, store.ErrRecordRejected)
}

// recordMessage strips sentinel prefixes so clients see only the cause.
func recordMessage(err error) string {
	msg := err.Error()
	for _, prefix := range []string{ErrRecordValidation.Error() + ": ", store.ErrRecordRejected.Error() + ": "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

// describeValidation renders validator errors using json field names.
func describeValidation(prefix string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRecord("%s%v", prefix, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := prefix + fe.Field()
		switch fe.Tag() {
		case "required", "notblank":
			parts = append(parts, name+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", name, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	return invalidRecord("%s", strings.Join(parts, "; "))
}
