package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quarryhq/quarry/pkg/persistence"
)

// ProjectRepository reads and writes the project to published-workflow
// binding.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetProjectWorkflowID returns the id of the published workflow governing
// the project.
func (r *ProjectRepository) GetProjectWorkflowID(ctx context.Context, projectID string) (string, error) {
	var workflowID string

	row := r.db.QueryRowContext(ctx,
		"SELECT workflow_id FROM projects WHERE id = $1", projectID)

	err := row.Scan(&workflowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", persistence.ErrProjectNotFound
		}

		return "", fmt.Errorf("failed to scan project workflow: %w", err)
	}

	return workflowID, nil
}

// ProjectsUsingWorkflow returns the ids of every project bound to the given
// workflow.
func (r *ProjectRepository) ProjectsUsingWorkflow(ctx context.Context, workflowID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM projects WHERE workflow_id = $1 ORDER BY id", workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}

	defer func() { _ = rows.Close() }()

	projectIDs := make([]string, 0)

	for rows.Next() {
		var id string

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}

		projectIDs = append(projectIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projectIDs, nil
}

// AssignWorkflow rebinds a project to a workflow.
func (r *ProjectRepository) AssignWorkflow(ctx context.Context, projectID, workflowID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE projects SET workflow_id = $2 WHERE id = $1", projectID, workflowID)
	if err != nil {
		return fmt.Errorf("failed to assign workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrProjectNotFound
	}

	return nil
}
