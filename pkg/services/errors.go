// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/approvio/approvio/pkg/persistence"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrTemplateNameRequired = errors.New("template name is required")
	ErrStepsRequired        = errors.New("template must have at least one step")
	ErrDuplicateStepOrder   = errors.New("step orders must be unique")
	ErrNonIncreasingOrder   = errors.New("step orders must be strictly increasing")
	ErrUnresolvableAssignee = errors.New("step assignee is not resolvable")
	ErrInvalidTrigger       = errors.New("invalid trigger kind")
	ErrInvalidDecision      = errors.New("invalid decision")
	ErrTemplateNil          = errors.New("template cannot be nil")

	// Invalid state errors (409 Conflict / 422 Unprocessable).
	ErrTemplateInactive  = errors.New("template is not active")
	ErrInstanceTerminal  = errors.New("instance is already completed or cancelled")
	ErrStepNotInProgress = errors.New("step execution is not in progress")
	ErrRevisionsExceeded = errors.New("revision limit reached; approve or reject")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Message: message, Err: err}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTemplateNameRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrDuplicateStepOrder) ||
		errors.Is(err, ErrNonIncreasingOrder) ||
		errors.Is(err, ErrUnresolvableAssignee) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrTemplateNil)
}

// IsInvalidState checks if an error indicates an operation against a record
// whose lifecycle state forbids it (HTTP 409).
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrTemplateInactive) ||
		errors.Is(err, ErrInstanceTerminal) ||
		errors.Is(err, ErrStepNotInProgress) ||
		errors.Is(err, ErrRevisionsExceeded) ||
		errors.Is(err, persistence.ErrInvalidTransition) ||
		errors.Is(err, persistence.ErrTemplateInUse)
}

// IsNotFound checks if an error indicates a missing record (HTTP 404).
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}

// IsConcurrencyConflict checks if an error indicates a lost race; retryable
// after re-reading the record (HTTP 409).
func IsConcurrencyConflict(err error) bool {
	return persistence.IsConcurrencyConflict(err)
}
