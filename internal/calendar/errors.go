package calendar

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an event or changeset does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports an event or patch field that violates an invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StorageError wraps a failure of the underlying store. Nothing from the
// failed call has been applied when it is returned from a mutation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err for op, leaving nil and existing StorageErrors alone.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
