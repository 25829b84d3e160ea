package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// StatusRepository reads the status catalog.
type StatusRepository struct {
	db *sql.DB
}

// NewStatusRepository creates a new status repository.
func NewStatusRepository(db *sql.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// GetStatus returns one catalog entry.
func (r *StatusRepository) GetStatus(ctx context.Context, id string) (*models.Status, error) {
	var status models.Status

	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, category FROM statuses WHERE id = $1", id)

	err := row.Scan(&status.ID, &status.Name, &status.Category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStatusNotFound
		}

		return nil, fmt.Errorf("failed to scan status: %w", err)
	}

	return &status, nil
}

// ListStatuses returns all catalog entries ordered by category then name.
func (r *StatusRepository) ListStatuses(ctx context.Context) ([]*models.Status, error) {
	query := `
		SELECT id, name, category
		FROM statuses
		ORDER BY
			CASE category
				WHEN 'todo' THEN 0
				WHEN 'in_progress' THEN 1
				ELSE 2
			END,
			name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}

	defer func() { _ = rows.Close() }()

	statuses := make([]*models.Status, 0)

	for rows.Next() {
		var status models.Status

		err := rows.Scan(&status.ID, &status.Name, &status.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}

		statuses = append(statuses, &status)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}

	return statuses, nil
}
