// Package postgresql provides the PostgreSQL persistence implementation for
// workflows, projects, boards and issues.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	statusRepo   *StatusRepository
	projectRepo  *ProjectRepository
	issueRepo    *IssueRepository
	boardRepo    *BoardRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		statusRepo:   NewStatusRepository(database),
		projectRepo:  NewProjectRepository(database),
		issueRepo:    NewIssueRepository(database),
		boardRepo:    NewBoardRepository(database, logger),
	}

	err = runMigrations(ctx, logger, database)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// WorkflowRepository returns the workflow repository.
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

// StatusRepository returns the status catalog repository.
func (p *Persistence) StatusRepository() persistence.StatusRepository {
	return p.statusRepo
}

// ProjectRepository returns the project binding repository.
func (p *Persistence) ProjectRepository() persistence.ProjectRepository {
	return p.projectRepo
}

// IssueRepository returns the issue status repository.
func (p *Persistence) IssueRepository() persistence.IssueRepository {
	return p.issueRepo
}

// BoardRepository returns the board repository.
func (p *Persistence) BoardRepository() persistence.BoardRepository {
	return p.boardRepo
}

// Constraint names from the schema, used to translate unique violations into
// the matching sentinel errors.
const (
	constraintOneDraftPerPublished = "workflows_one_draft_per_published"
	constraintStepStatusOnce       = "workflow_steps_status_once"
	constraintTransitionEdgeOnce   = "workflow_transitions_edge_once"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapConstraintError translates PostgreSQL constraint violations into
// persistence sentinel errors. Unrecognized errors pass through unchanged.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case constraintOneDraftPerPublished:
			return persistence.ErrDraftAlreadyExists
		case constraintStepStatusOnce:
			return persistence.ErrDuplicateStep
		case constraintTransitionEdgeOnce:
			return persistence.ErrDuplicateTransition
		}
	case pqForeignKeyViolation:
		return persistence.ErrWorkflowNotFound
	}

	return err
}
