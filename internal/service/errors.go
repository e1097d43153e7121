// Package service provides application-level services for managing tasks,
// projects, messages, and users.
package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors used across service implementations.
// Service methods return sentinels for expected conditions; unexpected errors
// are wrapped in ServiceError. The API layer maps these to HTTP status codes
// with errors.Is.
var (
	// ErrNotOwned indicates a resource is owned by a different user than the
	// one making the request. Ownership checks on reads return the not-found
	// sentinels instead, so foreign IDs are indistinguishable from missing
	// ones.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrTaskNotFound indicates that the task does not exist or is not
	// visible to the requesting user.
	ErrTaskNotFound = errors.New("task not found")

	// ErrProjectNotFound indicates that the project does not exist or is not
	// visible to the requesting user.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidRequest indicates the request was structurally valid but
	// semantically rejected (bad capability, missing context fields).
	ErrInvalidRequest = errors.New("invalid request")
)

// ServiceError wraps unexpected errors from a service with operation context.
type ServiceError struct {
	// Service is the service the error originated in (e.g., "task_service")
	Service string
	// Operation is the operation that failed (e.g., "create_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Service, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Service, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}
