package service

import (
	"errors"
	"fmt"
)

// ValidationError reports bad caller input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }

// AlreadyAwardedError reports an award attempt on a session that already
// holds an award, including the loser of a concurrent race.
type AlreadyAwardedError struct {
	SessionID string
}

func (e *AlreadyAwardedError) Error() string {
	return fmt.Sprintf("hunting session %s already awarded", e.SessionID)
}

// ConflictError reports a write refused because of existing state.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// StorageError wraps a failure of the store, including timeouts.  No
// partial write survives it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
