// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrVersionNotFound indicates no version (or no active version) exists.
	ErrVersionNotFound = errors.New("version not found")

	// ErrExecutionNotFound indicates an execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	ErrProjectNotFound = errors.New("project not found")

	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user is already registered for the channel.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInsufficientBalance indicates a spend would drive the bonus balance negative.
	ErrInsufficientBalance = errors.New("insufficient bonus balance")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")
)

// EntityError wraps storage errors with the operation and the entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Publish")
	Entity string // Entity kind (flow, version, execution, user, project)
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "flow", ID: id, Err: err}
}

func NewVersionError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "version", ID: id, Err: err}
}

func NewExecutionError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "execution", ID: id, Err: err}
}

func NewUserError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "user", ID: id, Err: err}
}

func NewProjectError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "project", ID: id, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
