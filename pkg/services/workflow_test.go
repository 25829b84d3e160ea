package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflow(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	assert.NotNil(t, service)
	assert.Equal(t, store, service.persistence)
}

func TestWorkflow_Create(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	created, err := service.Create(t.Context(), "Bug Flow", "for bug projects")
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Bug Flow", created.Name)
	assert.False(t, created.IsDraft)
	assert.Empty(t, created.Steps)
	assert.Empty(t, created.Transitions)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestWorkflow_Create_RequiresName(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	_, err := service.Create(t.Context(), "   ", "no name")
	require.ErrorIs(t, err, ErrNameRequired)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_FetchByID(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	wf := seedSimpleWorkflow(t, store)

	fetched, err := service.FetchByID(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, fetched.ID)
	assert.Len(t, fetched.Steps, 3)
	assert.Len(t, fetched.Transitions, 3)
}

func TestWorkflow_FetchByID_NotFound(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	_, err := service.FetchByID(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestWorkflow_List(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	seedSimpleWorkflow(t, store)
	seedSimpleWorkflow(t, store)

	workflows, err := service.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, workflows, 2)
}

func TestWorkflow_Clone(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	source := seedSimpleWorkflow(t, store)

	cloned, err := service.Clone(t.Context(), source.ID, "Simple Flow Copy")
	require.NoError(t, err)

	assert.NotEqual(t, source.ID, cloned.ID)
	assert.Equal(t, "Simple Flow Copy", cloned.Name)
	assert.False(t, cloned.IsDraft)
	assert.Len(t, cloned.Steps, len(source.Steps))
	assert.Len(t, cloned.Transitions, len(source.Transitions))

	// Clones must not alias the source graph rows.
	for _, step := range cloned.Steps {
		for _, sourceStep := range source.Steps {
			assert.NotEqual(t, sourceStep.ID, step.ID)
		}
	}
}

func TestWorkflow_Clone_SourceNotFound(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	_, err := service.Clone(t.Context(), "missing", "Copy")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_Delete(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	wf := seedSimpleWorkflow(t, store)

	require.NoError(t, service.Delete(t.Context(), wf.ID))

	_, err := service.FetchByID(t.Context(), wf.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_Delete_TakesDraftWithIt(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	wf := seedSimpleWorkflow(t, store)

	draft, err := store.WorkflowRepository().CreateDraft(t.Context(), wf.ID)
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), wf.ID))

	gone, err := store.WorkflowRepository().GetByID(t.Context(), draft.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestWorkflow_Delete_RefusedWhileInUse(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	wf := seedSimpleWorkflow(t, store)
	seedProject(t, store, "proj-1", wf.ID)

	err := service.Delete(t.Context(), wf.ID)
	require.ErrorIs(t, err, ErrWorkflowInUse)
	assert.True(t, IsConflictError(err))

	fetched, err := service.FetchByID(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, fetched.ID)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	store := newTestPersistence(t)
	service := NewWorkflow(store)

	message, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.NotEmpty(t, message)
}
