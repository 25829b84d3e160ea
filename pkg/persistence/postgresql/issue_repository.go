package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// IssueRepository reads and writes issue status.
type IssueRepository struct {
	db *sql.DB
}

// NewIssueRepository creates a new issue repository.
func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// GetIssue returns the workflow-relevant slice of an issue.
func (r *IssueRepository) GetIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	var issue models.Issue

	row := r.db.QueryRowContext(ctx,
		"SELECT id, project_id, status_id FROM issues WHERE id = $1", issueID)

	err := row.Scan(&issue.ID, &issue.ProjectID, &issue.StatusID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrIssueNotFound
		}

		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}

	return &issue, nil
}

// SetIssueStatus writes the issue's status conditioned on the issue still
// holding the expected prior status. A lost race yields ErrStatusConflict so
// the caller can retry against fresh state instead of silently clobbering a
// concurrent transition.
func (r *IssueRepository) SetIssueStatus(ctx context.Context, issueID, statusID, expectedPriorStatusID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE issues
		SET status_id = $2, updated_at = $3
		WHERE id = $1 AND status_id = $4
	`, issueID, statusID, time.Now().UTC(), expectedPriorStatusID)
	if err != nil {
		return fmt.Errorf("failed to update issue status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool

		err := r.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)", issueID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to probe issue existence: %w", err)
		}

		if !exists {
			return persistence.ErrIssueNotFound
		}

		return persistence.ErrStatusConflict
	}

	return nil
}

// CountIssuesWithStatus counts issues across the given projects currently
// holding the status.
func (r *IssueRepository) CountIssuesWithStatus(ctx context.Context, projectIDs []string, statusID string) (int, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}

	var count int

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM issues
		WHERE project_id = ANY($1) AND status_id = $2
	`, pq.Array(projectIDs), statusID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}

	return count, nil
}
