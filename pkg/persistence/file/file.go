// Package file provides a file-backed persistence implementation. All
// aggregates live in one JSON document guarded by a process-local lock; it
// backs local development and tests, not multi-process deployments.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

const stateFileName = "quarry.json"

type state struct {
	Workflows []*models.Workflow `json:"workflows"`
	Statuses  []*models.Status   `json:"statuses"`
	Projects  []*models.Project  `json:"projects"`
	Issues    []*models.Issue    `json:"issues"`
	Boards    []*models.Board    `json:"boards"`
}

// Persistence implements persistence.Persistence on top of a JSON state
// file. The single write lock also serializes draft creation, which is how
// this adapter upholds the one-draft-per-workflow invariant.
type Persistence struct {
	root  string
	mu    sync.RWMutex
	state *state
}

// NewPersistence creates a file persistence layer rooted at the given
// directory, loading existing state when present.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.TrimPrefix(root, "file://")

	err := os.MkdirAll(cleanRoot, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	p := &Persistence{
		root: cleanRoot,
		state: &state{
			Workflows: []*models.Workflow{},
			Statuses:  []*models.Status{},
			Projects:  []*models.Project{},
			Issues:    []*models.Issue{},
			Boards:    []*models.Board{},
		},
	}

	err = p.load()
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Persistence) statePath() string {
	return filepath.Join(p.root, stateFileName)
}

func (p *Persistence) load() error {
	data, err := os.ReadFile(p.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read state file: %w", err)
	}

	err = json.Unmarshal(data, p.state)
	if err != nil {
		return fmt.Errorf("failed to decode state file: %w", err)
	}

	return nil
}

// save writes the state file. Callers must hold the write lock.
func (p *Persistence) save() error {
	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	err = os.WriteFile(p.statePath(), data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// Close persists outstanding state. There is no connection to release.
func (p *Persistence) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.save()
}

// HealthCheck verifies the state directory is still reachable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); err != nil {
		return fmt.Errorf("state directory unavailable: %w", err)
	}

	return nil
}

// WorkflowRepository returns the workflow repository.
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &WorkflowRepository{store: p}
}

// StatusRepository returns the status catalog repository.
func (p *Persistence) StatusRepository() persistence.StatusRepository {
	return &StatusRepository{store: p}
}

// ProjectRepository returns the project binding repository.
func (p *Persistence) ProjectRepository() persistence.ProjectRepository {
	return &ProjectRepository{store: p}
}

// IssueRepository returns the issue status repository.
func (p *Persistence) IssueRepository() persistence.IssueRepository {
	return &IssueRepository{store: p}
}

// BoardRepository returns the board repository.
func (p *Persistence) BoardRepository() persistence.BoardRepository {
	return &BoardRepository{store: p}
}

// PutStatus inserts or replaces a status catalog entry. Fixture loader for
// local development and tests; the catalog is externally owned in production.
func (p *Persistence) PutStatus(status *models.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, existing := range p.state.Statuses {
		if existing.ID == status.ID {
			p.state.Statuses[i] = status

			return p.save()
		}
	}

	p.state.Statuses = append(p.state.Statuses, status)

	return p.save()
}

// PutProject inserts or replaces a project. Fixture loader.
func (p *Persistence) PutProject(project *models.Project) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, existing := range p.state.Projects {
		if existing.ID == project.ID {
			p.state.Projects[i] = project

			return p.save()
		}
	}

	p.state.Projects = append(p.state.Projects, project)

	return p.save()
}

// PutIssue inserts or replaces an issue. Fixture loader.
func (p *Persistence) PutIssue(issue *models.Issue) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, existing := range p.state.Issues {
		if existing.ID == issue.ID {
			p.state.Issues[i] = issue

			return p.save()
		}
	}

	p.state.Issues = append(p.state.Issues, issue)

	return p.save()
}

// PutBoard inserts or replaces a board. Fixture loader.
func (p *Persistence) PutBoard(board *models.Board) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, existing := range p.state.Boards {
		if existing.ID == board.ID {
			p.state.Boards[i] = board

			return p.save()
		}
	}

	p.state.Boards = append(p.state.Boards, board)

	return p.save()
}

// cloneWorkflow deep-copies a workflow so callers never alias stored graph
// slices.
func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	copied := *wf
	copied.Steps = make([]*models.WorkflowStep, len(wf.Steps))

	for i, step := range wf.Steps {
		stepCopy := *step
		copied.Steps[i] = &stepCopy
	}

	copied.Transitions = make([]*models.WorkflowTransition, len(wf.Transitions))

	for i, transition := range wf.Transitions {
		transitionCopy := *transition
		copied.Transitions[i] = &transitionCopy
	}

	return &copied
}

func cloneBoard(board *models.Board) *models.Board {
	copied := *board
	copied.Columns = make([]*models.BoardColumn, len(board.Columns))

	for i, column := range board.Columns {
		columnCopy := *column
		columnCopy.StatusIDs = append([]string(nil), column.StatusIDs...)

		if column.MinIssues != nil {
			value := *column.MinIssues
			columnCopy.MinIssues = &value
		}

		if column.MaxIssues != nil {
			value := *column.MaxIssues
			columnCopy.MaxIssues = &value
		}

		copied.Columns[i] = &columnCopy
	}

	return &copied
}
