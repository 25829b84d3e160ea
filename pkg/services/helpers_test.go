package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
	"github.com/quarryhq/quarry/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

// newTestPersistence returns a file store seeded with the status catalog the
// tests share.
func newTestPersistence(t *testing.T) *file.Persistence {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	statuses := []*models.Status{
		{ID: "backlog", Name: "Backlog", Category: models.StatusCategoryTodo},
		{ID: "in-progress", Name: "In Progress", Category: models.StatusCategoryInProgress},
		{ID: "review", Name: "Review", Category: models.StatusCategoryInProgress},
		{ID: "done", Name: "Done", Category: models.StatusCategoryDone},
	}

	for _, status := range statuses {
		require.NoError(t, store.PutStatus(status))
	}

	return store
}

// seedSimpleWorkflow creates a published backlog → in-progress → done
// workflow with no edge from backlog straight to done.
func seedSimpleWorkflow(t *testing.T, store persistence.Persistence) *models.Workflow {
	t.Helper()

	ctx := context.Background()
	repo := store.WorkflowRepository()

	wf, err := repo.Create(ctx, "Simple Flow", "three step flow")
	require.NoError(t, err)

	steps := []*models.WorkflowStep{
		{StatusID: "backlog", Position: 0},
		{StatusID: "in-progress", Position: 1},
		{StatusID: "done", Position: 2},
	}

	for _, step := range steps {
		require.NoError(t, repo.AddStep(ctx, wf.ID, step))
	}

	transitions := []*models.WorkflowTransition{
		{Name: "Start", FromStatusID: "backlog", ToStatusID: "in-progress"},
		{Name: "Finish", FromStatusID: "in-progress", ToStatusID: "done"},
		{Name: "Reopen", FromStatusID: "done", ToStatusID: "in-progress"},
	}

	for _, transition := range transitions {
		require.NoError(t, repo.AddTransition(ctx, wf.ID, transition))
	}

	wf, err = repo.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	require.NotNil(t, wf)

	return wf
}

func seedProject(t *testing.T, store *file.Persistence, projectID, workflowID string) {
	t.Helper()

	require.NoError(t, store.PutProject(&models.Project{
		ID:         projectID,
		Name:       projectID,
		WorkflowID: workflowID,
	}))
}

func seedIssue(t *testing.T, store *file.Persistence, issueID, projectID, statusID string) {
	t.Helper()

	require.NoError(t, store.PutIssue(&models.Issue{
		ID:        issueID,
		ProjectID: projectID,
		StatusID:  statusID,
	}))
}

func seedBoard(t *testing.T, store *file.Persistence, board *models.Board) {
	t.Helper()

	require.NoError(t, store.PutBoard(board))
}

// failingBoardPersistence fails ReplaceColumns for one board id and delegates
// everything else.
type failingBoardPersistence struct {
	persistence.Persistence

	failBoardID string
	failErr     error
}

func (p *failingBoardPersistence) BoardRepository() persistence.BoardRepository {
	return &failingBoardRepository{
		inner:       p.Persistence.BoardRepository(),
		failBoardID: p.failBoardID,
		failErr:     p.failErr,
	}
}

type failingBoardRepository struct {
	inner       persistence.BoardRepository
	failBoardID string
	failErr     error
}

func (r *failingBoardRepository) BoardsForProject(ctx context.Context, projectID string) ([]*models.Board, error) {
	return r.inner.BoardsForProject(ctx, projectID)
}

func (r *failingBoardRepository) ReplaceColumns(ctx context.Context, boardID string, columns []*models.BoardColumn) error {
	if boardID == r.failBoardID {
		return r.failErr
	}

	return r.inner.ReplaceColumns(ctx, boardID, columns)
}
