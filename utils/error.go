package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Sentinel errors for the posting and document lifecycle rules.
// Callers classify with errors.Is.
var (
	ErrorUnbalancedEntry     = errors.New("unbalanced entry")
	ErrorAlreadyVoid         = errors.New("document already void")
	ErrorImmutableDocument   = errors.New("document can no longer be modified")
	ErrorCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrorOverApplication     = errors.New("amount exceeds balance due")
	ErrorMissingActor        = errors.New("actor missing from context")
)

// ValidationError carries per-field messages from input validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	for field, msg := range e.Fields {
		return fmt.Sprintf("validation failed: %s %s", field, msg)
	}
	return "validation failed"
}

func NewValidationError(field string, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
