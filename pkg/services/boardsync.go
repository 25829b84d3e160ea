package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/otelhelper"
	"github.com/quarryhq/quarry/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BoardSync regenerates board columns after a workflow change so every board
// maps each workflow status to exactly one column.
type BoardSync struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewBoardSync creates a new board synchronization service.
func NewBoardSync(persistence persistence.Persistence, logger *slog.Logger) *BoardSync {
	return &BoardSync{
		persistence: persistence,
		logger:      logger.With("module", "board_sync"),
		tracer:      otel.Tracer("quarry.services.boardsync"),
	}
}

// RegenerateForProject rebuilds the columns of every board in the project
// against the project's current published workflow. Columns whose mapped
// statuses all survive are preserved, WIP limits included; statuses no board
// column claims get a fresh single-status column. Boards are synchronized
// independently: one board's failure is collected and the rest still run.
func (s *BoardSync) RegenerateForProject(ctx context.Context, projectID string) (int, []error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "boardsync.regenerate",
		attribute.String(otelhelper.ProjectIDKey, projectID))
	defer span.End()

	workflowID, err := s.persistence.ProjectRepository().GetProjectWorkflowID(ctx, projectID)
	if err != nil {
		return 0, []error{fmt.Errorf("failed to resolve project workflow: %w", err)}
	}

	wf, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return 0, []error{fmt.Errorf("failed to load workflow: %w", err)}
	}

	if wf == nil {
		return 0, []error{fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)}
	}

	statusesByID, err := s.statusIndex(ctx)
	if err != nil {
		return 0, []error{err}
	}

	boards, err := s.persistence.BoardRepository().BoardsForProject(ctx, projectID)
	if err != nil {
		return 0, []error{fmt.Errorf("failed to list boards: %w", err)}
	}

	var (
		updated   int
		syncErrs  []error
		survivors = make(map[string]bool, len(wf.Steps))
	)

	for _, statusID := range wf.StatusIDs() {
		survivors[statusID] = true
	}

	for _, board := range boards {
		columns := s.desiredColumns(board, wf, survivors, statusesByID)

		err := s.persistence.BoardRepository().ReplaceColumns(ctx, board.ID, columns)
		if err != nil {
			s.logger.ErrorContext(ctx, "board sync failed",
				"project_id", projectID, "board_id", board.ID, "error", err)
			otelhelper.SetError(span, err,
				attribute.String(otelhelper.BoardIDKey, board.ID))
			syncErrs = append(syncErrs, fmt.Errorf("board %s: %w", board.ID, err))

			continue
		}

		updated++
	}

	return updated, syncErrs
}

// desiredColumns computes the replacement column set for one board. Every
// surviving workflow status ends up in exactly one column: existing columns
// keep their statuses where possible, and each status left over gets a new
// column of its own, ordered by category then step position.
func (s *BoardSync) desiredColumns(
	board *models.Board,
	wf *models.Workflow,
	survivors map[string]bool,
	statusesByID map[string]*models.Status,
) []*models.BoardColumn {
	claimed := make(map[string]bool, len(survivors))
	columns := make([]*models.BoardColumn, 0, len(board.Columns))

	for _, column := range board.Columns {
		if len(column.StatusIDs) == 0 {
			continue
		}

		keep := true

		for _, statusID := range column.StatusIDs {
			if !survivors[statusID] || claimed[statusID] {
				keep = false

				break
			}
		}

		if !keep {
			continue
		}

		for _, statusID := range column.StatusIDs {
			claimed[statusID] = true
		}

		columns = append(columns, column)
	}

	unclaimed := make([]*models.WorkflowStep, 0)

	for _, step := range wf.Steps {
		if !claimed[step.StatusID] {
			unclaimed = append(unclaimed, step)
		}
	}

	sort.SliceStable(unclaimed, func(i, j int) bool {
		ri := categoryRank(statusesByID, unclaimed[i].StatusID)
		rj := categoryRank(statusesByID, unclaimed[j].StatusID)

		if ri != rj {
			return ri < rj
		}

		return unclaimed[i].Position < unclaimed[j].Position
	})

	for _, step := range unclaimed {
		name := step.StatusID
		if status, ok := statusesByID[step.StatusID]; ok {
			name = status.Name
		}

		columns = append(columns, &models.BoardColumn{
			Name:      name,
			StatusIDs: []string{step.StatusID},
		})
	}

	return columns
}

func (s *BoardSync) statusIndex(ctx context.Context) (map[string]*models.Status, error) {
	statuses, err := s.persistence.StatusRepository().ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load status catalog: %w", err)
	}

	byID := make(map[string]*models.Status, len(statuses))
	for _, status := range statuses {
		byID[status.ID] = status
	}

	return byID, nil
}

func categoryRank(statusesByID map[string]*models.Status, statusID string) int {
	status, ok := statusesByID[statusID]
	if !ok {
		return models.StatusCategory("").Rank()
	}

	return status.Category.Rank()
}
