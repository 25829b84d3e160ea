package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/otelhelper"
	"github.com/quarryhq/quarry/pkg/persistence"
	"github.com/quarryhq/quarry/pkg/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const transitionNotAllowedMessage = "transition not allowed by workflow"

// Transition executes issue status changes against the published workflow of
// the issue's project.
type Transition struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewTransition creates a new transition service.
func NewTransition(persistence persistence.Persistence, logger *slog.Logger) *Transition {
	return &Transition{
		persistence: persistence,
		logger:      logger.With("module", "transition"),
		tracer:      otel.Tracer("quarry.services.transition"),
	}
}

// Execute moves an issue to toStatusID when the project's published workflow
// has an edge from the issue's current status. An illegal move is a routine
// rejection reported on the result, not an error. The status write is
// conditional on the status read here still holding, so a concurrent
// transition makes the loser fail with ErrStatusConflict instead of silently
// overwriting.
func (s *Transition) Execute(ctx context.Context, issueID, toStatusID string) (*models.TransitionResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "transition.execute",
		attribute.String(otelhelper.IssueIDKey, issueID),
		attribute.String(otelhelper.ToStatusKey, toStatusID))
	defer span.End()

	issue, graph, err := s.resolve(ctx, issueID)
	if err != nil {
		return nil, err
	}

	status, err := s.persistence.StatusRepository().GetStatus(ctx, toStatusID)
	if err != nil {
		if errors.Is(err, persistence.ErrStatusNotFound) {
			return nil, ErrStatusNotFound
		}

		return nil, fmt.Errorf("failed to load target status: %w", err)
	}

	if !graph.IsValidTransition(issue.StatusID, status.ID) {
		return &models.TransitionResult{
			Success:    false,
			Error:      transitionNotAllowedMessage,
			IssueID:    issue.ID,
			FromStatus: issue.StatusID,
			ToStatus:   status.ID,
		}, nil
	}

	err = s.persistence.IssueRepository().SetIssueStatus(ctx, issue.ID, status.ID, issue.StatusID)
	if err != nil {
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.FromStatusKey, issue.StatusID))

		return nil, err
	}

	s.logger.InfoContext(ctx, "issue transitioned",
		"issue_id", issue.ID, "from_status", issue.StatusID, "to_status", status.ID)

	return &models.TransitionResult{
		Success:    true,
		IssueID:    issue.ID,
		FromStatus: issue.StatusID,
		ToStatus:   status.ID,
	}, nil
}

// AllowedTargets returns the status ids the issue may transition to from its
// current status, sorted. Boards use this to grey out illegal drop targets.
func (s *Transition) AllowedTargets(ctx context.Context, issueID string) ([]string, error) {
	issue, graph, err := s.resolve(ctx, issueID)
	if err != nil {
		return nil, err
	}

	return graph.ReachableSteps(issue.StatusID), nil
}

// resolve walks issue → project → published workflow and compiles the
// workflow graph.
func (s *Transition) resolve(ctx context.Context, issueID string) (*models.Issue, *workflow.Graph, error) {
	issue, err := s.persistence.IssueRepository().GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, persistence.ErrIssueNotFound) {
			return nil, nil, ErrIssueNotFound
		}

		return nil, nil, fmt.Errorf("failed to load issue: %w", err)
	}

	workflowID, err := s.persistence.ProjectRepository().GetProjectWorkflowID(ctx, issue.ProjectID)
	if err != nil {
		if errors.Is(err, persistence.ErrProjectNotFound) {
			return nil, nil, ErrProjectNotFound
		}

		return nil, nil, fmt.Errorf("failed to resolve project workflow: %w", err)
	}

	wf, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	if wf == nil {
		return nil, nil, ErrWorkflowNotFound
	}

	return issue, workflow.NewGraph(wf), nil
}
