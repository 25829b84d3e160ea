// Package persistence provides the data storage abstraction layer for
// workflows, projects, boards, issues and the status catalog.
package persistence

import (
	"context"

	"github.com/quarryhq/quarry/pkg/models"
)

// Persistence aggregates the repositories this core reads and writes. The
// issue, project, board and status repositories front external collaborators;
// the workflow repository is owned by this core.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	StatusRepository() StatusRepository
	ProjectRepository() ProjectRepository
	IssueRepository() IssueRepository
	BoardRepository() BoardRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository persists workflow definitions, their steps and their
// transitions. It is a dumb row store: callers are responsible for only
// mutating drafts or unused workflows, and for running the usage guard
// before removing steps.
type WorkflowRepository interface {
	// Create stores a new empty published workflow.
	Create(ctx context.Context, name, description string) (*models.Workflow, error)

	// GetByID returns the workflow with its full graph, or (nil, nil) when
	// no such workflow exists.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// List returns all workflows, drafts included, newest first.
	List(ctx context.Context) ([]*models.Workflow, error)

	// Delete removes a workflow and its graph rows. Callers must ensure no
	// project still binds to it.
	Delete(ctx context.Context, id string) error

	// CreateDraft deep-copies the published workflow's steps and transitions
	// into a new draft row set. At most one draft may exist per published
	// workflow; a concurrent loser receives ErrDraftAlreadyExists.
	CreateDraft(ctx context.Context, workflowID string) (*models.Workflow, error)

	// GetDraft returns the draft shadowing the given published workflow, or
	// (nil, nil) when none exists.
	GetDraft(ctx context.Context, workflowID string) (*models.Workflow, error)

	// PublishDraft atomically replaces the shadowed published workflow's
	// steps and transitions with the draft's and deletes the draft row set.
	// This is the single commit point of a publish: readers observe either
	// the old graph or the new one, never a mixture. Returns the updated
	// published workflow.
	PublishDraft(ctx context.Context, draftID string) (*models.Workflow, error)

	// DeleteDraft removes a draft row set. Deleting an already-deleted draft
	// is a no-op, making discard idempotent.
	DeleteDraft(ctx context.Context, draftID string) error

	// Clone fully duplicates a workflow's graph under a new published
	// workflow, used when forking a workflow for a new project.
	Clone(ctx context.Context, sourceID, newName string) (*models.Workflow, error)

	AddStep(ctx context.Context, workflowID string, step *models.WorkflowStep) error
	UpdateStep(ctx context.Context, workflowID string, step *models.WorkflowStep) error
	RemoveStep(ctx context.Context, workflowID, statusID string) error

	AddTransition(ctx context.Context, workflowID string, transition *models.WorkflowTransition) error
	UpdateTransition(ctx context.Context, workflowID string, transition *models.WorkflowTransition) error
	RemoveTransition(ctx context.Context, workflowID, transitionID string) error
}

// StatusRepository reads the externally owned status catalog.
type StatusRepository interface {
	GetStatus(ctx context.Context, id string) (*models.Status, error)
	ListStatuses(ctx context.Context) ([]*models.Status, error)
}

// ProjectRepository reads and writes the project → published-workflow
// binding. Bindings only ever reference published workflows.
type ProjectRepository interface {
	GetProjectWorkflowID(ctx context.Context, projectID string) (string, error)
	ProjectsUsingWorkflow(ctx context.Context, workflowID string) ([]string, error)
	AssignWorkflow(ctx context.Context, projectID, workflowID string) error
}

// IssueRepository reads and writes issue status. SetIssueStatus is a
// conditional write: it succeeds only while the issue still holds
// expectedPriorStatusID, so two racing transition requests cannot both
// succeed into inconsistent end states.
type IssueRepository interface {
	GetIssue(ctx context.Context, issueID string) (*models.Issue, error)
	SetIssueStatus(ctx context.Context, issueID, statusID, expectedPriorStatusID string) error
	CountIssuesWithStatus(ctx context.Context, projectIDs []string, statusID string) (int, error)
}

// BoardRepository reads boards and replaces their column sets. ReplaceColumns
// swaps a board's columns wholesale; partial column writes are never visible.
type BoardRepository interface {
	BoardsForProject(ctx context.Context, projectID string) ([]*models.Board, error)
	ReplaceColumns(ctx context.Context, boardID string, columns []*models.BoardColumn) error
}
