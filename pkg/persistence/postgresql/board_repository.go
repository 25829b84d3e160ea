package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// BoardRepository reads boards and replaces their column sets.
type BoardRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBoardRepository creates a new board repository.
func NewBoardRepository(db *sql.DB, logger *slog.Logger) *BoardRepository {
	return &BoardRepository{db: db, logger: logger}
}

// BoardsForProject returns all boards of a project with their columns.
func (r *BoardRepository) BoardsForProject(ctx context.Context, projectID string) ([]*models.Board, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, project_id, name FROM boards WHERE project_id = $1 ORDER BY name", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	boards := make([]*models.Board, 0)

	for rows.Next() {
		var board models.Board

		err := rows.Scan(&board.ID, &board.ProjectID, &board.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}

		boards = append(boards, &board)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boards: %w", err)
	}

	for _, board := range boards {
		if err := r.loadColumns(ctx, board); err != nil {
			return nil, fmt.Errorf("failed to load board columns: %w", err)
		}
	}

	return boards, nil
}

// ReplaceColumns swaps a board's columns wholesale in one transaction, so a
// partially rewritten column set is never visible to readers.
func (r *BoardRepository) ReplaceColumns(ctx context.Context, boardID string, columns []*models.BoardColumn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool

	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM boards WHERE id = $1)", boardID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to probe board existence: %w", err)
	}

	if !exists {
		err = persistence.ErrBoardNotFound

		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM board_columns WHERE board_id = $1", boardID)
	if err != nil {
		return fmt.Errorf("failed to delete existing columns: %w", err)
	}

	for position, column := range columns {
		if column.ID == "" {
			var id string

			id, err = newRowID()
			if err != nil {
				return err
			}

			column.ID = id
		}

		column.Position = position

		_, err = tx.ExecContext(ctx, `
			INSERT INTO board_columns (id, board_id, name, position, min_issues, max_issues)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, column.ID, boardID, column.Name, column.Position, column.MinIssues, column.MaxIssues)
		if err != nil {
			return fmt.Errorf("failed to insert column: %w", err)
		}

		for _, statusID := range column.StatusIDs {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO board_column_statuses (column_id, status_id)
				VALUES ($1, $2)
			`, column.ID, statusID)
			if err != nil {
				return fmt.Errorf("failed to insert column status: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *BoardRepository) loadColumns(ctx context.Context, board *models.Board) error {
	query := `
		SELECT id, name, position, min_issues, max_issues
		FROM board_columns
		WHERE board_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, board.ID)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	columns := make([]*models.BoardColumn, 0)

	for rows.Next() {
		var (
			column   models.BoardColumn
			min, max sql.NullInt64
		)

		err := rows.Scan(&column.ID, &column.Name, &column.Position, &min, &max)
		if err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		if min.Valid {
			value := int(min.Int64)
			column.MinIssues = &value
		}

		if max.Valid {
			value := int(max.Int64)
			column.MaxIssues = &value
		}

		columns = append(columns, &column)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating columns: %w", err)
	}

	for _, column := range columns {
		statusRows, err := r.db.QueryContext(ctx,
			"SELECT status_id FROM board_column_statuses WHERE column_id = $1 ORDER BY status_id", column.ID)
		if err != nil {
			return fmt.Errorf("failed to query column statuses: %w", err)
		}

		statusIDs := make([]string, 0)

		for statusRows.Next() {
			var statusID string

			err := statusRows.Scan(&statusID)
			if err != nil {
				_ = statusRows.Close()

				return fmt.Errorf("failed to scan column status: %w", err)
			}

			statusIDs = append(statusIDs, statusID)
		}

		err = statusRows.Err()

		_ = statusRows.Close()

		if err != nil {
			return fmt.Errorf("error iterating column statuses: %w", err)
		}

		column.StatusIDs = statusIDs
	}

	board.Columns = columns

	return nil
}
