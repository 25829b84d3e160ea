package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/otelhelper"
	"github.com/quarryhq/quarry/pkg/persistence"
	"github.com/quarryhq/quarry/pkg/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Draft handles the edit-and-publish lifecycle of workflow definitions. All
// structural edits go through a draft copy; the published workflow stays
// untouched until the draft is published in one atomic swap. The only
// exception is a workflow no project binds to yet, which may be edited in
// place.
type Draft struct {
	persistence persistence.Persistence
	boardSync   *BoardSync
	guard       *UsageGuard
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewDraft creates a new draft service.
func NewDraft(persistence persistence.Persistence, boardSync *BoardSync, guard *UsageGuard, logger *slog.Logger) *Draft {
	return &Draft{
		persistence: persistence,
		boardSync:   boardSync,
		guard:       guard,
		logger:      logger.With("module", "draft"),
		tracer:      otel.Tracer("quarry.services.draft"),
	}
}

// StartDraft creates a draft copy of a published workflow. At most one draft
// exists per published workflow; a concurrent second request loses with
// ErrDraftAlreadyExists.
func (s *Draft) StartDraft(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	if wf.IsDraft {
		return nil, &ServiceError{
			Op:      "StartDraft",
			Message: fmt.Sprintf("workflow %s is itself a draft", workflowID),
			Err:     ErrInvalidRequest,
		}
	}

	draft, err := s.persistence.WorkflowRepository().CreateDraft(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "draft started", "workflow_id", workflowID, "draft_id", draft.ID)

	return draft, nil
}

// FetchDraft returns the draft shadowing a published workflow.
func (s *Draft) FetchDraft(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	draft, err := s.persistence.WorkflowRepository().GetDraft(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if draft == nil {
		return nil, ErrDraftNotFound
	}

	return draft, nil
}

// Publish validates the draft's graph, atomically swaps it into the published
// workflow, and fans board synchronization out across every bound project.
// The swap is the only observable switch; board sync failures are collected
// on the result and never fail the publish.
func (s *Draft) Publish(ctx context.Context, draftID string) (*models.PublishResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "draft.publish",
		attribute.String(otelhelper.DraftIDKey, draftID))
	defer span.End()

	draft, err := s.persistence.WorkflowRepository().GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	if draft == nil {
		return nil, ErrDraftNotFound
	}

	if !draft.IsDraft {
		return nil, &ServiceError{
			Op:      "Publish",
			Message: fmt.Sprintf("workflow %s is not a draft", draftID),
			Err:     ErrDraftRequired,
		}
	}

	violations := workflow.NewGraph(draft).Validate()
	if len(violations) > 0 {
		return nil, &InvalidGraphError{WorkflowID: draftID, Violations: violations}
	}

	published, err := s.persistence.WorkflowRepository().PublishDraft(ctx, draftID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to publish draft: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, published.ID))

	s.logger.InfoContext(ctx, "draft published",
		"draft_id", draftID, "workflow_id", published.ID)

	projectIDs, err := s.persistence.ProjectRepository().ProjectsUsingWorkflow(ctx, published.ID)
	if err != nil {
		// The publish itself already committed. Report the fan-out as failed
		// wholesale rather than unwinding a successful publish.
		return &models.PublishResult{
			Workflow: published,
			SyncErrors: []models.ProjectSyncError{
				{Message: fmt.Sprintf("failed to resolve bound projects: %v", err)},
			},
		}, nil
	}

	result := &models.PublishResult{
		Workflow:           published,
		AffectedProjectIDs: projectIDs,
		SyncErrors:         []models.ProjectSyncError{},
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, projectID := range projectIDs {
		wg.Add(1)

		go func(projectID string) {
			defer wg.Done()

			updated, syncErrs := s.boardSync.RegenerateForProject(ctx, projectID)

			mu.Lock()
			defer mu.Unlock()

			result.BoardsUpdated += updated

			for _, syncErr := range syncErrs {
				result.SyncErrors = append(result.SyncErrors, models.ProjectSyncError{
					ProjectID: projectID,
					Message:   syncErr.Error(),
				})
			}
		}(projectID)
	}

	wg.Wait()

	return result, nil
}

// Discard deletes a draft. Discarding a draft that no longer exists is a
// no-op, so retried discards stay safe.
func (s *Draft) Discard(ctx context.Context, draftID string) error {
	err := s.persistence.WorkflowRepository().DeleteDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("failed to discard draft: %w", err)
	}

	s.logger.InfoContext(ctx, "draft discarded", "draft_id", draftID)

	return nil
}

// AddStep binds a catalog status to the workflow as a new step.
func (s *Draft) AddStep(ctx context.Context, workflowID string, step *models.WorkflowStep) (*models.Workflow, error) {
	wf, err := s.editableTarget(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	_, err = s.persistence.StatusRepository().GetStatus(ctx, step.StatusID)
	if err != nil {
		return nil, err
	}

	err = s.persistence.WorkflowRepository().AddStep(ctx, wf.ID, step)
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, wf.ID)
}

// UpdateStep rewrites an existing step, typically to reorder it.
func (s *Draft) UpdateStep(ctx context.Context, workflowID string, step *models.WorkflowStep) (*models.Workflow, error) {
	wf, err := s.editableTarget(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = s.persistence.WorkflowRepository().UpdateStep(ctx, wf.ID, step)
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, wf.ID)
}

// RemoveStep removes a step and every transition attached to it. The usage
// guard runs first: a status that live issues still hold cannot lose its
// step.
func (s *Draft) RemoveStep(ctx context.Context, workflowID, statusID string) (*models.Workflow, error) {
	wf, err := s.editableTarget(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	check, err := s.guard.CanRemoveStep(ctx, wf.ID, statusID)
	if err != nil {
		return nil, err
	}

	if !check.Allowed {
		return nil, &ServiceError{
			Op:      "RemoveStep",
			Message: fmt.Sprintf("%d issue(s) still hold status %s", check.IssueCount, statusID),
			Err:     ErrStepInUse,
		}
	}

	err = s.persistence.WorkflowRepository().RemoveStep(ctx, wf.ID, statusID)
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, wf.ID)
}

// AddTransition adds an edge between two existing steps.
func (s *Draft) AddTransition(ctx context.Context, workflowID string, transition *models.WorkflowTransition) (*models.Workflow, error) {
	wf, err := s.editableTarget(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = s.requireSteps(wf, transition.FromStatusID, transition.ToStatusID)
	if err != nil {
		return nil, err
	}

	err = s.persistence.WorkflowRepository().AddTransition(ctx, wf.ID, transition)
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, wf.ID)
}

// UpdateTransition rewrites an existing transition.
func (s *Draft) UpdateTransition(ctx context.Context, workflowID string, transition *models.WorkflowTransition) (*models.Workflow, error) {
	wf, err := s.editableTarget(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = s.requireSteps(wf, transition.FromStatusID, transition.ToStatusID)
	if err != nil {
		return nil, err
	}

	err = s.persistence.WorkflowRepository().UpdateTransition(ctx, wf.ID, transition)
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, wf.ID)
}

// RemoveTransition removes an edge.
func (s *Draft) RemoveTransition(ctx context.Context, workflowID, transitionID string) (*models.Workflow, error) {
	wf, err := s.editableTarget(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = s.persistence.WorkflowRepository().RemoveTransition(ctx, wf.ID, transitionID)
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, wf.ID)
}

// editableTarget loads the workflow and decides whether it may be edited in
// place. Drafts always may. A published workflow may only while no project
// binds to it; otherwise edits must go through a draft.
func (s *Draft) editableTarget(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	if wf.IsDraft {
		return wf, nil
	}

	projectIDs, err := s.persistence.ProjectRepository().ProjectsUsingWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to check workflow usage: %w", err)
	}

	if len(projectIDs) > 0 {
		return nil, &ServiceError{
			Op:      "editableTarget",
			Message: fmt.Sprintf("workflow %s is bound to %d project(s); edit a draft instead", workflowID, len(projectIDs)),
			Err:     ErrNotEditable,
		}
	}

	return wf, nil
}

func (s *Draft) requireSteps(wf *models.Workflow, statusIDs ...string) error {
	for _, statusID := range statusIDs {
		if wf.StepFor(statusID) == nil {
			return &ServiceError{
				Op:      "requireSteps",
				Message: fmt.Sprintf("workflow %s has no step for status %s", wf.ID, statusID),
				Err:     ErrStepNotFound,
			}
		}
	}

	return nil
}

func (s *Draft) reload(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	return wf, nil
}
