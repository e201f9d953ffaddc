package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrValidation          = NewDomainError("VALIDATION_ERROR", "Entity failed validation")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrIsolationViolation  = NewDomainError("ISOLATION_VIOLATION", "Operation crosses the caller's authorized branch or tenant boundary")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// IsolationViolationError carries the identifiers needed to log a rejected
// write. It deliberately carries no field values, so other tenants' data
// never leaks through error messages.
type IsolationViolationError struct {
	ActorID    uuid.UUID
	EntityType string
	EntityID   string
}

// Error implements the error interface
func (e *IsolationViolationError) Error() string {
	return fmt.Sprintf("isolation violation: actor %s is not authorized to write %s/%s",
		e.ActorID, e.EntityType, e.EntityID)
}

// Unwrap makes errors.Is(err, ErrIsolationViolation) work
func (e *IsolationViolationError) Unwrap() error {
	return ErrIsolationViolation
}

// ValidationError wraps the underlying validator failure
type ValidationError struct {
	Details string
}

// NewValidationError creates a ValidationError from a validator error
func NewValidationError(err error) *ValidationError {
	return &ValidationError{Details: err.Error()}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return "validation failed: " + e.Details
}

// Unwrap makes errors.Is(err, ErrValidation) work
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
