package file

import (
	"context"
	"strings"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// StatusRepository reads the status catalog from the state file.
type StatusRepository struct {
	store *Persistence
}

// GetStatus returns one catalog entry.
func (r *StatusRepository) GetStatus(_ context.Context, id string) (*models.Status, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, status := range r.store.state.Statuses {
		if status.ID == id {
			statusCopy := *status

			return &statusCopy, nil
		}
	}

	return nil, persistence.ErrStatusNotFound
}

// ListStatuses returns all catalog entries.
func (r *StatusRepository) ListStatuses(_ context.Context) ([]*models.Status, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	statuses := make([]*models.Status, 0, len(r.store.state.Statuses))
	for _, status := range r.store.state.Statuses {
		statusCopy := *status
		statuses = append(statuses, &statusCopy)
	}

	return statuses, nil
}

// ProjectRepository reads and writes project bindings in the state file.
type ProjectRepository struct {
	store *Persistence
}

// GetProjectWorkflowID returns the project's bound workflow id.
func (r *ProjectRepository) GetProjectWorkflowID(_ context.Context, projectID string) (string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, project := range r.store.state.Projects {
		if project.ID == projectID {
			return project.WorkflowID, nil
		}
	}

	return "", persistence.ErrProjectNotFound
}

// ProjectsUsingWorkflow returns the ids of projects bound to the workflow.
func (r *ProjectRepository) ProjectsUsingWorkflow(_ context.Context, workflowID string) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	projectIDs := make([]string, 0)

	for _, project := range r.store.state.Projects {
		if project.WorkflowID == workflowID {
			projectIDs = append(projectIDs, project.ID)
		}
	}

	return projectIDs, nil
}

// AssignWorkflow rebinds a project to a workflow.
func (r *ProjectRepository) AssignWorkflow(_ context.Context, projectID, workflowID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, project := range r.store.state.Projects {
		if project.ID == projectID {
			// Detach the id from any caller-owned request buffer.
			project.WorkflowID = strings.Clone(workflowID)

			return r.store.save()
		}
	}

	return persistence.ErrProjectNotFound
}

// IssueRepository reads and writes issue status in the state file.
type IssueRepository struct {
	store *Persistence
}

// GetIssue returns the workflow-relevant slice of an issue.
func (r *IssueRepository) GetIssue(_ context.Context, issueID string) (*models.Issue, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, issue := range r.store.state.Issues {
		if issue.ID == issueID {
			issueCopy := *issue

			return &issueCopy, nil
		}
	}

	return nil, persistence.ErrIssueNotFound
}

// SetIssueStatus writes the status conditioned on the expected prior status
// still holding, under the store's write lock.
func (r *IssueRepository) SetIssueStatus(_ context.Context, issueID, statusID, expectedPriorStatusID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, issue := range r.store.state.Issues {
		if issue.ID == issueID {
			if issue.StatusID != expectedPriorStatusID {
				return persistence.ErrStatusConflict
			}

			issue.StatusID = strings.Clone(statusID)

			return r.store.save()
		}
	}

	return persistence.ErrIssueNotFound
}

// CountIssuesWithStatus counts issues across the given projects currently
// holding the status.
func (r *IssueRepository) CountIssuesWithStatus(_ context.Context, projectIDs []string, statusID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	inScope := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		inScope[id] = true
	}

	count := 0

	for _, issue := range r.store.state.Issues {
		if inScope[issue.ProjectID] && issue.StatusID == statusID {
			count++
		}
	}

	return count, nil
}

// BoardRepository reads boards and replaces their column sets in the state
// file.
type BoardRepository struct {
	store *Persistence
}

// BoardsForProject returns all boards of a project.
func (r *BoardRepository) BoardsForProject(_ context.Context, projectID string) ([]*models.Board, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	boards := make([]*models.Board, 0)

	for _, board := range r.store.state.Boards {
		if board.ProjectID == projectID {
			boards = append(boards, cloneBoard(board))
		}
	}

	return boards, nil
}

// ReplaceColumns swaps a board's columns wholesale.
func (r *BoardRepository) ReplaceColumns(_ context.Context, boardID string, columns []*models.BoardColumn) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, board := range r.store.state.Boards {
		if board.ID == boardID {
			replacement := make([]*models.BoardColumn, 0, len(columns))

			for position, column := range columns {
				if column.ID == "" {
					id, err := newRowID()
					if err != nil {
						return err
					}

					column.ID = id
				}

				columnCopy := *column
				columnCopy.Position = position
				columnCopy.StatusIDs = append([]string(nil), column.StatusIDs...)
				replacement = append(replacement, &columnCopy)
			}

			board.Columns = replacement

			return r.store.save()
		}
	}

	return persistence.ErrBoardNotFound
}
