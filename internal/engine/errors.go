package engine

import (
	"fmt"

	"teamportal/internal/repo"
)

// ValidationError is a malformed or missing input field. It is raised
// before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing entity the way callers display it.
type NotFoundError struct {
	What string
	ID   string
}

func (e NotFoundError) Error() string { return e.What + " not found" }

func (e NotFoundError) Unwrap() error { return repo.ErrNotFound }

// ConflictError reports a hierarchy that cannot be rolled up: a cycle,
// an over-deep chain, or a parent that kept changing under us.
type ConflictError struct {
	TaskID  string
	Message string
}

func (e ConflictError) Error() string { return e.Message }

// StoreError wraps a failed query with the job step that issued it.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return StoreError{Op: op, Err: err}
}
