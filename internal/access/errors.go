package access

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("you must be logged in")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrDuplicatePending = errors.New("you already have a pending request for this movie")
	ErrAlreadyApproved  = errors.New("you already have access to this movie")
	ErrPersistence      = errors.New("failed to process request, please try again")
)

// ValidationError names the submitted field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Field + " is invalid"
	}
	return e.Message
}

// PersistenceError wraps a storage failure. Error() never includes the cause;
// the cause is kept for logging through Unwrap.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return ErrPersistence.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Detail is the log form of the error, including the cause.
func (e *PersistenceError) Detail() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
