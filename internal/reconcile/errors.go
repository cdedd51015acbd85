package reconcile

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrRecordNotFound is returned when the referenced record does not exist.
	ErrRecordNotFound = eris.New("record not found")

	// ErrPersistence marks a failed storage transaction. Nothing from the
	// pass was applied.
	ErrPersistence = eris.New("persistence failure")
)

// NotFoundError names the record that could not be found.
type NotFoundError struct {
	RecordID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("reconcile: record %s not found", e.RecordID)
}

// Is implements errors.Is support.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

// PersistenceError wraps the storage failure behind an aborted pass.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("reconcile: %s: %v", e.Op, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
