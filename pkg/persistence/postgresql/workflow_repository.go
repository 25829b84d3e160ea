package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// WorkflowRepository handles workflow definition database operations. It is
// a dumb row store: draft-only rules and usage guarding are enforced by the
// service layer.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func newRowID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate row ID: %w", err)
	}

	return id.String(), nil
}

// Create stores a new empty published workflow.
func (r *WorkflowRepository) Create(ctx context.Context, name, description string) (*models.Workflow, error) {
	id, err := newRowID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO workflows (id, name, description, is_draft, draft_of, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NULL, $4, $4)
	`

	_, err = r.db.ExecContext(ctx, query, id, name, description, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert workflow: %w", err)
	}

	return &models.Workflow{
		ID:          id,
		Name:        name,
		Description: description,
		Steps:       []*models.WorkflowStep{},
		Transitions: []*models.WorkflowTransition{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetByID returns the workflow with its full graph, or (nil, nil) when no
// such workflow exists.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , is_draft
		  , draft_of
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to load workflow graph: %w", err)
	}

	return workflow, nil
}

// List returns all workflows, drafts included, newest first.
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , is_draft
		  , draft_of
		  , created_at
		  , updated_at
		FROM workflows
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, fmt.Errorf("failed to load workflow graph: %w", err)
		}
	}

	return workflows, nil
}

// Delete removes a workflow and, via cascade, its steps and transitions.
// Deleting an absent workflow is not an error.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// CreateDraft deep-copies the published workflow's graph into a new draft
// row set. The partial unique index on draft_of serializes concurrent
// callers: the loser receives ErrDraftAlreadyExists.
func (r *WorkflowRepository) CreateDraft(ctx context.Context, workflowID string) (*models.Workflow, error) {
	source, err := r.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if source == nil {
		return nil, persistence.NewWorkflowError("CreateDraft", workflowID, persistence.ErrWorkflowNotFound)
	}

	if source.IsDraft {
		return nil, persistence.NewWorkflowError("CreateDraft", workflowID, persistence.ErrNotADraft)
	}

	draftID, err := newRowID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO workflows (id, name, description, is_draft, draft_of, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $5)
	`

	_, err = tx.ExecContext(ctx, query, draftID, source.Name, source.Description, workflowID, now)
	if err != nil {
		err = mapConstraintError(err)
		if persistence.IsDraftAlreadyExists(err) {
			return nil, persistence.NewWorkflowError("CreateDraft", workflowID, persistence.ErrDraftAlreadyExists)
		}

		return nil, fmt.Errorf("failed to insert draft workflow: %w", err)
	}

	err = r.copyGraph(ctx, tx, source, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy workflow graph: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r.GetByID(ctx, draftID)
}

// GetDraft returns the draft shadowing the given published workflow, or
// (nil, nil) when none exists.
func (r *WorkflowRepository) GetDraft(ctx context.Context, workflowID string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , is_draft
		  , draft_of
		  , created_at
		  , updated_at
		FROM workflows
		WHERE draft_of = $1
	`

	row := r.db.QueryRowContext(ctx, query, workflowID)

	draft, err := r.scanWorkflowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan draft workflow: %w", err)
	}

	if err := r.loadGraph(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to load draft workflow graph: %w", err)
	}

	return draft, nil
}

// PublishDraft atomically replaces the shadowed published workflow's graph
// with the draft's and deletes the draft row. Readers observe either the old
// graph or the new one, never a mixture.
func (r *WorkflowRepository) PublishDraft(ctx context.Context, draftID string) (*models.Workflow, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		targetID          sql.NullString
		name, description string
	)

	row := tx.QueryRowContext(ctx,
		"SELECT draft_of, name, description FROM workflows WHERE id = $1 FOR UPDATE", draftID)

	err = row.Scan(&targetID, &name, &description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.NewWorkflowError("PublishDraft", draftID, persistence.ErrDraftNotFound)
		}

		return nil, err
	}

	if !targetID.Valid {
		err = persistence.NewWorkflowError("PublishDraft", draftID, persistence.ErrNotADraft)

		return nil, err
	}

	// Swap graph content: drop the published rows, re-parent the draft rows.
	for _, table := range []string{"workflow_transitions", "workflow_steps"} {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE workflow_id = $1", table), targetID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to delete published graph rows: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET workflow_id = $1 WHERE workflow_id = $2", table),
			targetID.String, draftID)
		if err != nil {
			return nil, fmt.Errorf("failed to move draft graph rows: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE workflows SET name = $2, description = $3, updated_at = $4 WHERE id = $1",
		targetID.String, name, description, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update published workflow: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete draft row: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish transaction: %w", err)
	}

	return r.GetByID(ctx, targetID.String)
}

// DeleteDraft removes a draft row set. Absent drafts are a no-op, so discard
// is idempotent.
func (r *WorkflowRepository) DeleteDraft(ctx context.Context, draftID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM workflows WHERE id = $1 AND draft_of IS NOT NULL", draftID)
	if err != nil {
		return fmt.Errorf("failed to delete draft workflow: %w", err)
	}

	return nil
}

// Clone fully duplicates a workflow's graph under a new published workflow.
func (r *WorkflowRepository) Clone(ctx context.Context, sourceID, newName string) (*models.Workflow, error) {
	source, err := r.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if source == nil {
		return nil, persistence.NewWorkflowError("Clone", sourceID, persistence.ErrWorkflowNotFound)
	}

	cloneID, err := newRowID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO workflows (id, name, description, is_draft, draft_of, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NULL, $4, $4)
	`

	_, err = tx.ExecContext(ctx, query, cloneID, newName, source.Description, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert cloned workflow: %w", err)
	}

	err = r.copyGraph(ctx, tx, source, cloneID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy workflow graph: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r.GetByID(ctx, cloneID)
}

// AddStep inserts a step row. A second step for the same status yields
// ErrDuplicateStep.
func (r *WorkflowRepository) AddStep(ctx context.Context, workflowID string, step *models.WorkflowStep) error {
	if step.ID == "" {
		id, err := newRowID()
		if err != nil {
			return err
		}

		step.ID = id
	}

	query := `
		INSERT INTO workflow_steps (id, workflow_id, status_id, position)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, step.ID, workflowID, step.StatusID, step.Position)
	if err != nil {
		mapped := mapConstraintError(err)
		if mapped != err {
			return persistence.NewWorkflowError("AddStep", workflowID, mapped)
		}

		return fmt.Errorf("failed to insert step: %w", err)
	}

	return nil
}

// UpdateStep updates a step's position (and status binding, when changed).
func (r *WorkflowRepository) UpdateStep(ctx context.Context, workflowID string, step *models.WorkflowStep) error {
	query := `
		UPDATE workflow_steps
		SET status_id = $3, position = $4
		WHERE id = $1 AND workflow_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, step.ID, workflowID, step.StatusID, step.Position)
	if err != nil {
		mapped := mapConstraintError(err)
		if mapped != err {
			return persistence.NewWorkflowError("UpdateStep", workflowID, mapped)
		}

		return fmt.Errorf("failed to update step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("UpdateStep", workflowID, persistence.ErrStepNotFound)
	}

	return nil
}

// RemoveStep deletes the step binding the given status along with every
// transition touching it, in one transaction.
func (r *WorkflowRepository) RemoveStep(ctx context.Context, workflowID, statusID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		"DELETE FROM workflow_steps WHERE workflow_id = $1 AND status_id = $2", workflowID, statusID)
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = persistence.NewWorkflowError("RemoveStep", workflowID, persistence.ErrStepNotFound)

		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM workflow_transitions
		WHERE workflow_id = $1 AND (from_status_id = $2 OR to_status_id = $2)
	`, workflowID, statusID)
	if err != nil {
		return fmt.Errorf("failed to delete attached transitions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AddTransition inserts a transition row. A second edge between the same
// (from, to) pair yields ErrDuplicateTransition.
func (r *WorkflowRepository) AddTransition(ctx context.Context, workflowID string, transition *models.WorkflowTransition) error {
	if transition.ID == "" {
		id, err := newRowID()
		if err != nil {
			return err
		}

		transition.ID = id
	}

	query := `
		INSERT INTO workflow_transitions (id, workflow_id, name, from_status_id, to_status_id, rule_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		transition.ID,
		workflowID,
		transition.Name,
		transition.FromStatusID,
		transition.ToStatusID,
		transition.RuleRef,
	)
	if err != nil {
		mapped := mapConstraintError(err)
		if mapped != err {
			return persistence.NewWorkflowError("AddTransition", workflowID, mapped)
		}

		return fmt.Errorf("failed to insert transition: %w", err)
	}

	return nil
}

// UpdateTransition updates a transition's name, endpoints and rule reference.
func (r *WorkflowRepository) UpdateTransition(ctx context.Context, workflowID string, transition *models.WorkflowTransition) error {
	query := `
		UPDATE workflow_transitions
		SET name = $3, from_status_id = $4, to_status_id = $5, rule_ref = $6
		WHERE id = $1 AND workflow_id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		transition.ID,
		workflowID,
		transition.Name,
		transition.FromStatusID,
		transition.ToStatusID,
		transition.RuleRef,
	)
	if err != nil {
		mapped := mapConstraintError(err)
		if mapped != err {
			return persistence.NewWorkflowError("UpdateTransition", workflowID, mapped)
		}

		return fmt.Errorf("failed to update transition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("UpdateTransition", workflowID, persistence.ErrTransitionNotFound)
	}

	return nil
}

// RemoveTransition deletes a transition row.
func (r *WorkflowRepository) RemoveTransition(ctx context.Context, workflowID, transitionID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM workflow_transitions WHERE id = $1 AND workflow_id = $2", transitionID, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete transition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("RemoveTransition", workflowID, persistence.ErrTransitionNotFound)
	}

	return nil
}

// copyGraph inserts fresh copies of the source workflow's steps and
// transitions under the destination workflow id.
func (r *WorkflowRepository) copyGraph(ctx context.Context, tx *sql.Tx, source *models.Workflow, destinationID string) error {
	for _, step := range source.Steps {
		id, err := newRowID()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, workflow_id, status_id, position)
			VALUES ($1, $2, $3, $4)
		`, id, destinationID, step.StatusID, step.Position)
		if err != nil {
			return fmt.Errorf("failed to copy step: %w", err)
		}
	}

	for _, transition := range source.Transitions {
		id, err := newRowID()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_transitions (id, workflow_id, name, from_status_id, to_status_id, rule_ref)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, destinationID, transition.Name, transition.FromStatusID, transition.ToStatusID, transition.RuleRef)
		if err != nil {
			return fmt.Errorf("failed to copy transition: %w", err)
		}
	}

	return nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	stepsQuery := `
		SELECT id, status_id, position
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY position, status_id
	`

	rows, err := r.db.QueryContext(ctx, stepsQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var step models.WorkflowStep

		err := rows.Scan(&step.ID, &step.StatusID, &step.Position)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	workflow.Steps = steps

	transitionsQuery := `
		SELECT id, name, from_status_id, to_status_id, rule_ref
		FROM workflow_transitions
		WHERE workflow_id = $1
		ORDER BY from_status_id, to_status_id
	`

	rows, err = r.db.QueryContext(ctx, transitionsQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow transitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	transitions := make([]*models.WorkflowTransition, 0)

	for rows.Next() {
		var transition models.WorkflowTransition

		err := rows.Scan(
			&transition.ID,
			&transition.Name,
			&transition.FromStatusID,
			&transition.ToStatusID,
			&transition.RuleRef,
		)
		if err != nil {
			return fmt.Errorf("failed to scan transition: %w", err)
		}

		transitions = append(transitions, &transition)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating transitions: %w", err)
	}

	workflow.Transitions = transitions

	return nil
}

func (r *WorkflowRepository) scanWorkflowBase(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		draftOf  sql.NullString
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.IsDraft,
		&draftOf,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if draftOf.Valid {
		workflow.DraftOf = draftOf.String
	}

	return &workflow, nil
}
