package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// Workflow handles lifecycle operations on workflow definitions.
type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new empty published workflow. Steps and transitions are
// added afterwards through the draft edit surface; a brand-new workflow has
// no projects bound to it and so is directly editable.
func (w *Workflow) Create(ctx context.Context, name, description string) (*models.Workflow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	created, err := w.persistence.WorkflowRepository().Create(ctx, name, description)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return created, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	return wf, nil
}

// List returns all workflows, drafts included.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Clone duplicates a workflow's full graph under a new published workflow.
func (w *Workflow) Clone(ctx context.Context, sourceID, newName string) (*models.Workflow, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, ErrNameRequired
	}

	source, err := w.persistence.WorkflowRepository().GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if source == nil {
		return nil, ErrWorkflowNotFound
	}

	cloned, err := w.persistence.WorkflowRepository().Clone(ctx, sourceID, newName)
	if err != nil {
		return nil, fmt.Errorf("failed to clone workflow: %w", err)
	}

	return cloned, nil
}

// Delete removes a workflow. A workflow still bound to projects is protected;
// the caller must rebind those projects first.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if existing == nil {
		return ErrWorkflowNotFound
	}

	projectIDs, err := w.persistence.ProjectRepository().ProjectsUsingWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to check workflow usage: %w", err)
	}

	if len(projectIDs) > 0 {
		return &ServiceError{
			Op:      "Delete",
			Message: fmt.Sprintf("workflow %s is bound to %d project(s)", workflowID, len(projectIDs)),
			Err:     ErrWorkflowInUse,
		}
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}
