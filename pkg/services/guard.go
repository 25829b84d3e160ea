package services

import (
	"context"
	"fmt"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// UsageGuard answers whether destructive workflow edits are safe against
// live issue data.
type UsageGuard struct {
	persistence persistence.Persistence
}

// NewUsageGuard creates a new usage guard service.
func NewUsageGuard(persistence persistence.Persistence) *UsageGuard {
	return &UsageGuard{
		persistence: persistence,
	}
}

// CanRemoveStep reports whether the step binding statusID may be removed from
// the workflow. Removal is allowed only while no issue in any bound project
// currently holds the status; a draft is checked against the projects of the
// published workflow it shadows, since those are the issues a publish would
// strand.
func (g *UsageGuard) CanRemoveStep(ctx context.Context, workflowID, statusID string) (*models.StepRemovalCheck, error) {
	wf, err := g.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	if wf.StepFor(statusID) == nil {
		return nil, ErrStepNotFound
	}

	boundID := wf.ID
	if wf.IsDraft {
		boundID = wf.DraftOf
	}

	projectIDs, err := g.persistence.ProjectRepository().ProjectsUsingWorkflow(ctx, boundID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bound projects: %w", err)
	}

	count, err := g.persistence.IssueRepository().CountIssuesWithStatus(ctx, projectIDs, statusID)
	if err != nil {
		return nil, fmt.Errorf("failed to count issues in status: %w", err)
	}

	return &models.StepRemovalCheck{
		Allowed:    count == 0,
		IssueCount: count,
	}, nil
}
