package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input that the caller can recover from locally.
	ErrValidation = errors.New("validation failed")
	// ErrDataIntegrity marks a reference that points at no stored transaction.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrNotCompleted is returned when votes are credited for a transaction that is not completed.
	ErrNotCompleted = errors.New("transaction is not completed")
)

// ValidationError describes which field was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
