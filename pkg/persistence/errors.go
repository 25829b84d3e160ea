// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrDraftNotFound indicates no draft exists for the given workflow.
	ErrDraftNotFound = errors.New("draft workflow not found")

	// ErrDraftAlreadyExists indicates a draft already shadows the given published workflow.
	ErrDraftAlreadyExists = errors.New("draft already exists for workflow")

	// ErrNotADraft indicates a draft-only operation was attempted on a published workflow.
	ErrNotADraft = errors.New("workflow is not a draft")

	// ErrStepNotFound indicates a workflow step was not found.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrDuplicateStep indicates the status is already bound by a step of the workflow.
	ErrDuplicateStep = errors.New("status already has a step in workflow")

	// ErrTransitionNotFound indicates a workflow transition was not found.
	ErrTransitionNotFound = errors.New("workflow transition not found")

	// ErrDuplicateTransition indicates a transition between the same pair of steps already exists.
	ErrDuplicateTransition = errors.New("transition already exists between steps")

	// ErrStatusNotFound indicates a status catalog entry was not found.
	ErrStatusNotFound = errors.New("status not found")

	// ErrProjectNotFound indicates a project was not found.
	ErrProjectNotFound = errors.New("project not found")

	// ErrIssueNotFound indicates an issue was not found.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrBoardNotFound indicates a board was not found.
	ErrBoardNotFound = errors.New("board not found")

	// ErrStatusConflict indicates an issue status write lost an optimistic
	// concurrency race: the issue no longer held the expected prior status.
	ErrStatusConflict = errors.New("issue status changed concurrently")

	// ErrWorkflowInUse indicates a workflow cannot be deleted because
	// projects still bind to it.
	ErrWorkflowInUse = errors.New("workflow is bound to projects")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "CreateDraft", "PublishDraft")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
	Message    string // Additional context message
}

func (e *WorkflowError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for workflow %s: %s (%v)", e.Op, e.WorkflowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsDraftNotFound checks if an error indicates a draft was not found.
func IsDraftNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}

// IsDraftAlreadyExists checks if an error indicates a draft already exists.
func IsDraftAlreadyExists(err error) bool {
	return errors.Is(err, ErrDraftAlreadyExists)
}

// IsStatusConflict checks if an error indicates a lost optimistic
// concurrency race on an issue status write.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}

// IsNotFound checks if an error indicates any referenced entity was missing.
// Missing references signal data corruption and are treated as fatal by
// callers, unlike routine transition rejections.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrDraftNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrTransitionNotFound) ||
		errors.Is(err, ErrStatusNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrIssueNotFound) ||
		errors.Is(err, ErrBoardNotFound)
}
