package sharing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced share request does not exist.
	ErrNotFound = errors.New("share request not found")

	// ErrInvalidState means a transition was attempted on a request that
	// is no longer pending. The stored status is left unchanged.
	ErrInvalidState = errors.New("share request is not pending")

	// ErrEmptySelection means ConfirmShare was called with no records
	// selected.
	ErrEmptySelection = errors.New("no records selected")

	// ErrForbidden means the caller's organization is not the one the
	// request was addressed to. Only the record-owning organization may
	// review, confirm, or reject a request.
	ErrForbidden = errors.New("caller's organization does not own the requested records")
)

// ValidationError reports malformed input to a workflow operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// storageErr wraps an underlying persistence failure with the failing
// operation's name so callers can distinguish it from workflow errors.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
