// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quarryhq/quarry/pkg/persistence"
	"github.com/quarryhq/quarry/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrNameRequired   = errors.New("workflow name is required")

	// Business Logic Conflicts (409 Conflict).
	ErrDraftRequired  = errors.New("operation requires a draft workflow")
	ErrNotEditable    = errors.New("published workflow in use cannot be edited directly")
	ErrStepInUse      = errors.New("step still holds live issues")
	ErrWorkflowInUse  = persistence.ErrWorkflowInUse
	ErrStatusConflict = persistence.ErrStatusConflict

	// Not Found (404).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrDraftNotFound    = persistence.ErrDraftNotFound
	ErrIssueNotFound    = persistence.ErrIssueNotFound
	ErrStatusNotFound   = persistence.ErrStatusNotFound
	ErrProjectNotFound  = persistence.ErrProjectNotFound
	ErrStepNotFound     = persistence.ErrStepNotFound
)

// InvalidGraphError reports a failed structural validation of a workflow
// graph, carrying every violation found so clients can fix them in one pass.
type InvalidGraphError struct {
	WorkflowID string
	Violations []workflow.GraphError
}

func (e *InvalidGraphError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, violation := range e.Violations {
		messages = append(messages, violation.Message)
	}

	return fmt.Sprintf("workflow %s is not valid: %s", e.WorkflowID, strings.Join(messages, "; "))
}

func (e *InvalidGraphError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
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
	var invalidGraph *InvalidGraphError
	if errors.As(err, &invalidGraph) {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNameRequired)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDraftRequired) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrStepInUse) ||
		errors.Is(err, ErrWorkflowInUse) ||
		errors.Is(err, ErrStatusConflict) ||
		errors.Is(err, persistence.ErrDraftAlreadyExists) ||
		errors.Is(err, persistence.ErrDuplicateStep) ||
		errors.Is(err, persistence.ErrDuplicateTransition)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}
