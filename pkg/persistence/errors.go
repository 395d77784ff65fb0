// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a workflow template was not found by the given identifier.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrInstanceNotFound indicates a workflow instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrStepExecutionNotFound indicates a step execution was not found by the given identifier.
	ErrStepExecutionNotFound = errors.New("step execution not found")

	// ErrTemplateAlreadyExists indicates a template with the same identifier already exists.
	ErrTemplateAlreadyExists = errors.New("workflow template already exists")

	// ErrTemplateInUse indicates a template cannot be deleted while instances reference it.
	ErrTemplateInUse = errors.New("workflow template is referenced by instances")

	// ErrConcurrencyConflict indicates a conditional write lost a race: the
	// record's status no longer matched the expected precondition. Callers
	// may retry after re-reading; the winning writer already advanced the
	// record.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")

	// ErrInvalidTransition indicates a status transition that the lifecycle
	// never allows, regardless of races (e.g. resurrecting a terminal record).
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TemplateError wraps template-related errors with additional context.
type TemplateError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	TemplateID string // Template ID if applicable
	Err        error  // Underlying error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTemplateError creates a new template error with context.
func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{Op: op, TemplateID: templateID, Err: err}
}

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string // Operation being performed
	InstanceID string // Instance ID if applicable
	Err        error  // Underlying error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// StepExecutionError wraps step-execution-related errors with additional context.
type StepExecutionError struct {
	Op          string // Operation being performed
	ExecutionID string // Step execution ID
	InstanceID  string // Parent instance ID if applicable
	Err         error  // Underlying error
}

func (e *StepExecutionError) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("%s operation failed for step execution %s in instance %s: %v", e.Op, e.ExecutionID, e.InstanceID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for step execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

func (e *StepExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStepExecutionError creates a new step execution error with context.
func NewStepExecutionError(op, executionID string, err error) *StepExecutionError {
	return &StepExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsStepExecutionNotFound checks if an error indicates a step execution was not found.
func IsStepExecutionNotFound(err error) bool {
	return errors.Is(err, ErrStepExecutionNotFound)
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	return IsTemplateNotFound(err) || IsInstanceNotFound(err) || IsStepExecutionNotFound(err)
}

// IsConcurrencyConflict checks if an error indicates a conditional write
// lost a race. These are the retryable failures of the taxonomy.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
