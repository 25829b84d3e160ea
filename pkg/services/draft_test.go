package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
	"github.com/quarryhq/quarry/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraftService(store persistence.Persistence) *Draft {
	logger := testLogger()

	return NewDraft(store, NewBoardSync(store, logger), NewUsageGuard(store), logger)
}

func TestDraft_StartDraft(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	assert.True(t, draft.IsDraft)
	assert.Equal(t, published.ID, draft.DraftOf)
	assert.Len(t, draft.Steps, len(published.Steps))
	assert.Len(t, draft.Transitions, len(published.Transitions))

	// The draft owns its graph rows outright.
	sourceRows := map[string]bool{}

	for _, step := range published.Steps {
		sourceRows[step.ID] = true
	}

	for _, transition := range published.Transitions {
		sourceRows[transition.ID] = true
	}

	for _, step := range draft.Steps {
		assert.False(t, sourceRows[step.ID])
	}

	for _, transition := range draft.Transitions {
		assert.False(t, sourceRows[transition.ID])
	}
}

func TestDraft_StartDraft_SecondDraftRefused(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	_, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	_, err = service.StartDraft(t.Context(), published.ID)
	require.ErrorIs(t, err, persistence.ErrDraftAlreadyExists)
	assert.True(t, IsConflictError(err))
}

func TestDraft_StartDraft_ConcurrentSingleWinner(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	const attempts = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		losers    int
	)

	for range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := service.StartDraft(context.Background(), published.ID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, persistence.ErrDraftAlreadyExists):
				losers++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, losers)
}

func TestDraft_StartDraft_OfDraftRefused(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	_, err = service.StartDraft(t.Context(), draft.ID)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDraft_EditsStayInvisibleUntilPublish(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)
	seedProject(t, store, "proj-1", published.ID)
	seedIssue(t, store, "issue-1", "proj-1", "backlog")

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	// Give the draft a direct backlog → done shortcut.
	_, err = service.AddTransition(t.Context(), draft.ID, &models.WorkflowTransition{
		Name:         "Fast Close",
		FromStatusID: "backlog",
		ToStatusID:   "done",
	})
	require.NoError(t, err)

	// Runtime still evaluates the published graph: the shortcut is rejected.
	transitions := NewTransition(store, testLogger())

	result, err := transitions.Execute(t.Context(), "issue-1", "done")
	require.NoError(t, err)
	assert.False(t, result.Success)

	// Publish flips the switch.
	_, err = service.Publish(t.Context(), draft.ID)
	require.NoError(t, err)

	result, err = transitions.Execute(t.Context(), "issue-1", "done")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestDraft_Publish_RejectsInvalidGraph(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)
	seedProject(t, store, "proj-1", published.ID)

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	// Strand the Finish and Reopen transitions by hollowing out their steps
	// at the repository level; the service-level guard would refuse this.
	require.NoError(t, store.WorkflowRepository().RemoveTransition(t.Context(), draft.ID, draft.Transitions[0].ID))

	draft, err = store.WorkflowRepository().GetDraft(t.Context(), published.ID)
	require.NoError(t, err)

	require.NoError(t, store.WorkflowRepository().RemoveStep(t.Context(), draft.ID, "backlog"))
	require.NoError(t, store.WorkflowRepository().AddTransition(t.Context(), draft.ID, &models.WorkflowTransition{
		Name:         "Ghost",
		FromStatusID: "backlog",
		ToStatusID:   "done",
	}))

	_, err = service.Publish(t.Context(), draft.ID)

	var invalid *InvalidGraphError

	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.Violations)
	assert.True(t, IsValidationError(err))

	hasOrphan := false

	for _, violation := range invalid.Violations {
		if violation.Code == workflow.GraphErrOrphanFrom {
			hasOrphan = true
		}
	}

	assert.True(t, hasOrphan)
}

func TestDraft_Publish_NotADraft(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	_, err := service.Publish(t.Context(), published.ID)
	require.ErrorIs(t, err, ErrDraftRequired)
	assert.True(t, IsConflictError(err))
}

func TestDraft_Publish_SyncsBoardsAcrossProjects(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)
	seedProject(t, store, "proj-1", published.ID)
	seedProject(t, store, "proj-2", published.ID)

	seedBoard(t, store, &models.Board{ID: "board-1", ProjectID: "proj-1", Name: "P1 Main"})
	seedBoard(t, store, &models.Board{ID: "board-2", ProjectID: "proj-2", Name: "P2 Main"})

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	_, err = service.AddStep(t.Context(), draft.ID, &models.WorkflowStep{StatusID: "review", Position: 2})
	require.NoError(t, err)

	_, err = service.AddTransition(t.Context(), draft.ID, &models.WorkflowTransition{
		Name:         "Submit",
		FromStatusID: "in-progress",
		ToStatusID:   "review",
	})
	require.NoError(t, err)

	result, err := service.Publish(t.Context(), draft.ID)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"proj-1", "proj-2"}, result.AffectedProjectIDs)
	assert.Equal(t, 2, result.BoardsUpdated)
	assert.Empty(t, result.SyncErrors)

	// Every board now maps every workflow status exactly once.
	for _, projectID := range []string{"proj-1", "proj-2"} {
		boards, err := store.BoardRepository().BoardsForProject(t.Context(), projectID)
		require.NoError(t, err)
		require.Len(t, boards, 1)

		seen := map[string]int{}

		for _, column := range boards[0].Columns {
			for _, statusID := range column.StatusIDs {
				seen[statusID]++
			}
		}

		assert.Equal(t, map[string]int{"backlog": 1, "in-progress": 1, "review": 1, "done": 1}, seen)
	}
}

func TestDraft_Publish_BoardFailureDoesNotFailPublish(t *testing.T) {
	store := newTestPersistence(t)

	failing := &failingBoardPersistence{
		Persistence: store,
		failBoardID: "board-p2",
		failErr:     errors.New("board store unavailable"),
	}

	service := newDraftService(failing)

	published := seedSimpleWorkflow(t, store)
	seedProject(t, store, "proj-1", published.ID)
	seedProject(t, store, "proj-2", published.ID)

	seedBoard(t, store, &models.Board{ID: "board-p1a", ProjectID: "proj-1", Name: "P1 A"})
	seedBoard(t, store, &models.Board{ID: "board-p1b", ProjectID: "proj-1", Name: "P1 B"})
	seedBoard(t, store, &models.Board{ID: "board-p2", ProjectID: "proj-2", Name: "P2"})

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	result, err := service.Publish(t.Context(), draft.ID)
	require.NoError(t, err)

	// Both P1 boards synced; P2's failure landed as data on the result.
	assert.Equal(t, 2, result.BoardsUpdated)
	require.Len(t, result.SyncErrors, 1)
	assert.Equal(t, "proj-2", result.SyncErrors[0].ProjectID)
	assert.Contains(t, result.SyncErrors[0].Message, "board store unavailable")

	// The publish itself committed: the draft is gone.
	gone, err := store.WorkflowRepository().GetDraft(t.Context(), published.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDraft_Discard_Idempotent(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	require.NoError(t, service.Discard(t.Context(), draft.ID))
	require.NoError(t, service.Discard(t.Context(), draft.ID))

	gone, err := store.WorkflowRepository().GetDraft(t.Context(), published.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Published workflow untouched.
	kept, err := store.WorkflowRepository().GetByID(t.Context(), published.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Len(t, kept.Steps, 3)
}

func TestDraft_EditRefusedOnBoundPublishedWorkflow(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)
	seedProject(t, store, "proj-1", published.ID)

	_, err := service.AddStep(t.Context(), published.ID, &models.WorkflowStep{StatusID: "review", Position: 3})
	require.ErrorIs(t, err, ErrNotEditable)
	assert.True(t, IsConflictError(err))
}

func TestDraft_EditAllowedOnUnusedPublishedWorkflow(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	updated, err := service.AddStep(t.Context(), published.ID, &models.WorkflowStep{StatusID: "review", Position: 3})
	require.NoError(t, err)
	assert.Len(t, updated.Steps, 4)
}

func TestDraft_AddStep_UnknownStatus(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	_, err := service.AddStep(t.Context(), published.ID, &models.WorkflowStep{StatusID: "nope"})
	require.ErrorIs(t, err, ErrStatusNotFound)
}

func TestDraft_AddTransition_RequiresBothSteps(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	_, err := service.AddTransition(t.Context(), published.ID, &models.WorkflowTransition{
		Name:         "Into The Void",
		FromStatusID: "backlog",
		ToStatusID:   "review",
	})
	require.ErrorIs(t, err, ErrStepNotFound)
}

func TestDraft_RemoveStep_GuardedByLiveIssues(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)
	seedProject(t, store, "proj-1", published.ID)
	seedIssue(t, store, "issue-1", "proj-1", "in-progress")

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	_, err = service.RemoveStep(t.Context(), draft.ID, "in-progress")
	require.ErrorIs(t, err, ErrStepInUse)
	assert.True(t, IsConflictError(err))

	// An unoccupied status may lose its step.
	_, err = service.RemoveStep(t.Context(), draft.ID, "done")
	require.NoError(t, err)
}

func TestDraft_RemoveStep_DropsAttachedTransitions(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	updated, err := service.RemoveStep(t.Context(), published.ID, "done")
	require.NoError(t, err)

	assert.Len(t, updated.Steps, 2)

	for _, transition := range updated.Transitions {
		assert.NotEqual(t, "done", transition.FromStatusID)
		assert.NotEqual(t, "done", transition.ToStatusID)
	}
}

func TestDraft_FetchDraft(t *testing.T) {
	store := newTestPersistence(t)
	service := newDraftService(store)

	published := seedSimpleWorkflow(t, store)

	_, err := service.FetchDraft(t.Context(), published.ID)
	require.ErrorIs(t, err, ErrDraftNotFound)

	draft, err := service.StartDraft(t.Context(), published.ID)
	require.NoError(t, err)

	fetched, err := service.FetchDraft(t.Context(), published.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, fetched.ID)
}
