// Package services provides the operations behind the HTTP API and the CLI:
// authoring flows, publishing versions and operating executions.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/graph"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrEmptyProjectID    = errors.New("project ID cannot be empty")
	ErrInvalidRetention  = errors.New("retention must be positive")
	ErrFlowNil           = errors.New("flow cannot be nil")
	ErrFlowNameRequired  = errors.New("flow name is required")
	ErrNodesRequired     = errors.New("flow must have at least one node")
	ErrValidationFailed  = errors.New("flow has validation errors")
	ErrNodeNotInVersion  = engine.ErrNodeNotInFlow
	ErrInvalidNodeConfig = errors.New("invalid node configuration")

	// Business Logic Conflicts (409 Conflict).
	ErrExecutionNotActive = engine.ErrNotActive
	ErrSessionBusy        = engine.ErrSessionBusy
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	var authoring *graph.AuthoringError

	return errors.As(err, &authoring) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrEmptyProjectID) ||
		errors.Is(err, ErrInvalidRetention) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrNodeNotInVersion) ||
		errors.Is(err, ErrInvalidNodeConfig)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrExecutionNotActive) ||
		errors.Is(err, ErrSessionBusy)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
