package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence/file"
	"github.com/quarryhq/quarry/pkg/services"
	"github.com/quarryhq/quarry/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.Default()
	workflowService := services.NewWorkflow(store)
	boardSyncService := services.NewBoardSync(store, logger)
	guardService := services.NewUsageGuard(store)
	draftService := services.NewDraft(store, boardSyncService, guardService, logger)
	transitionService := services.NewTransition(store, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(workflowService, draftService, transitionService, guardService, validate)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/clone", handlers.CloneWorkflow)
	w.Post("/:id/draft", handlers.StartDraft)
	w.Get("/:id/draft", handlers.GetDraft)
	w.Post("/:id/steps", handlers.AddStep)
	w.Patch("/:id/steps", handlers.UpdateStep)
	w.Delete("/:id/steps/:statusId", handlers.RemoveStep)
	w.Get("/:id/steps/:statusId/removal-check", handlers.StepRemovalCheck)
	w.Post("/:id/transitions", handlers.AddTransition)
	w.Patch("/:id/transitions", handlers.UpdateTransition)
	w.Delete("/:id/transitions/:transitionId", handlers.RemoveTransition)

	d := app.Group("/drafts")
	d.Post("/:id/publish", handlers.PublishDraft)
	d.Delete("/:id", handlers.DiscardDraft)

	i := app.Group("/issues")
	i.Post("/:id/transitions", handlers.ExecuteTransition)
	i.Get("/:id/transitions", handlers.GetAllowedTargets)

	app.Get("/health", handlers.HealthCheck)

	return app, store
}

func seedCatalog(t *testing.T, store *file.Persistence) {
	t.Helper()

	statuses := []*models.Status{
		{ID: "backlog", Name: "Backlog", Category: models.StatusCategoryTodo},
		{ID: "in-progress", Name: "In Progress", Category: models.StatusCategoryInProgress},
		{ID: "done", Name: "Done", Category: models.StatusCategoryDone},
	}

	for _, status := range statuses {
		require.NoError(t, store.PutStatus(status))
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, raw
}

// buildWorkflow drives the API to create a published workflow with the full
// backlog → in-progress → done graph.
func buildWorkflow(t *testing.T, app *fiber.App) models.Workflow {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:        "Bug Flow",
		Description: "standard bug lifecycle",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wf models.Workflow
	require.NoError(t, json.Unmarshal(body, &wf))

	for position, statusID := range []string{"backlog", "in-progress", "done"} {
		resp, _ = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/steps", web.AddStepRequest{
			StatusID: statusID,
			Position: position,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	transitions := []web.AddTransitionRequest{
		{Name: "Start", FromStatusID: "backlog", ToStatusID: "in-progress"},
		{Name: "Finish", FromStatusID: "in-progress", ToStatusID: "done"},
	}

	for _, transition := range transitions {
		resp, _ = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/transitions", transition)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body = doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &wf))

	return wf
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Test Workflow",
				Description: "Test Description",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.CreateWorkflowRequest{Description: "no name"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreateWorkflowRequest{Name: "Te"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				var wf models.Workflow
				require.NoError(t, json.Unmarshal(body, &wf))
				assert.NotEmpty(t, wf.ID)
				assert.False(t, wf.IsDraft)
			}
		})
	}
}

func TestAPIHandlers_GetWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not_found")
}

func TestAPIHandlers_DraftLifecycle(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)

	// No draft yet.
	resp, _ := doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID+"/draft", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Start one.
	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/draft", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var draft models.Workflow
	require.NoError(t, json.Unmarshal(body, &draft))
	assert.True(t, draft.IsDraft)
	assert.Equal(t, wf.ID, draft.DraftOf)

	// A second draft conflicts.
	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/draft", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The router reuses its param buffers across requests; the stored draft
	// must still point at the published workflow after unrelated traffic.
	resp, _ = doJSON(t, app, http.MethodGet, "/workflows/"+strings.Repeat("x", 40), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID+"/draft", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &draft))
	assert.Equal(t, wf.ID, draft.DraftOf)

	// Edit the draft, then publish.
	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/"+draft.ID+"/transitions", web.AddTransitionRequest{
		Name:         "Reopen",
		FromStatusID: "done",
		ToStatusID:   "backlog",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodPost, "/drafts/"+draft.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.PublishResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, wf.ID, result.Workflow.ID)
	assert.Len(t, result.Workflow.Transitions, 3)
	assert.Empty(t, result.SyncErrors)

	// The draft is gone after publish.
	resp, _ = doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID+"/draft", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_DiscardDraft_Idempotent(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/draft", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var draft models.Workflow
	require.NoError(t, json.Unmarshal(body, &draft))

	resp, _ = doJSON(t, app, http.MethodDelete, "/drafts/"+draft.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/drafts/"+draft.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPIHandlers_EditConflictOnBoundWorkflow(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)
	require.NoError(t, store.PutProject(&models.Project{ID: "proj-1", Name: "P1", WorkflowID: wf.ID}))

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/steps", web.AddStepRequest{
		StatusID: "done",
		Position: 5,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "conflict")
}

func TestAPIHandlers_RemovalCheck(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)
	require.NoError(t, store.PutProject(&models.Project{ID: "proj-1", Name: "P1", WorkflowID: wf.ID}))
	require.NoError(t, store.PutIssue(&models.Issue{ID: "issue-1", ProjectID: "proj-1", StatusID: "in-progress"}))

	resp, body := doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID+"/steps/in-progress/removal-check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var check models.StepRemovalCheck
	require.NoError(t, json.Unmarshal(body, &check))
	assert.False(t, check.Allowed)
	assert.Equal(t, 1, check.IssueCount)

	resp, body = doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID+"/steps/done/removal-check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &check))
	assert.True(t, check.Allowed)
}

func TestAPIHandlers_ExecuteTransition(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)
	require.NoError(t, store.PutProject(&models.Project{ID: "proj-1", Name: "P1", WorkflowID: wf.ID}))
	require.NoError(t, store.PutIssue(&models.Issue{ID: "issue-1", ProjectID: "proj-1", StatusID: "backlog"}))

	// Illegal move: no backlog → done edge.
	resp, body := doJSON(t, app, http.MethodPost, "/issues/issue-1/transitions", web.ExecuteTransitionRequest{
		ToStatusID: "done",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var result models.TransitionResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.False(t, result.Success)
	assert.Equal(t, "transition not allowed by workflow", result.Error)

	// Legal move.
	resp, body = doJSON(t, app, http.MethodPost, "/issues/issue-1/transitions", web.ExecuteTransitionRequest{
		ToStatusID: "in-progress",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Success)

	// Unknown issue.
	resp, _ = doJSON(t, app, http.MethodPost, "/issues/missing/transitions", web.ExecuteTransitionRequest{
		ToStatusID: "done",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_GetAllowedTargets(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)
	require.NoError(t, store.PutProject(&models.Project{ID: "proj-1", Name: "P1", WorkflowID: wf.ID}))
	require.NoError(t, store.PutIssue(&models.Issue{ID: "issue-1", ProjectID: "proj-1", StatusID: "backlog"}))

	resp, body := doJSON(t, app, http.MethodGet, "/issues/issue-1/transitions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var targets web.AllowedTargetsResponse
	require.NoError(t, json.Unmarshal(body, &targets))
	assert.Equal(t, "issue-1", targets.IssueID)
	assert.Equal(t, []string{"in-progress"}, targets.Targets)
}

func TestAPIHandlers_PublishInvalidGraph(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	// A workflow with no steps cannot publish.
	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name: "Empty Flow",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wf models.Workflow
	require.NoError(t, json.Unmarshal(body, &wf))

	resp, body = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/draft", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var draft models.Workflow
	require.NoError(t, json.Unmarshal(body, &draft))

	resp, body = doJSON(t, app, http.MethodPost, "/drafts/"+draft.ID+"/publish", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_workflow_graph")
}

func TestAPIHandlers_CloneWorkflow(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/clone", web.CloneWorkflowRequest{
		Name: "Bug Flow Copy",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var cloned models.Workflow
	require.NoError(t, json.Unmarshal(body, &cloned))
	assert.NotEqual(t, wf.ID, cloned.ID)
	assert.Len(t, cloned.Steps, 3)
}

func TestAPIHandlers_DeleteWorkflow_InUse(t *testing.T) {
	app, store := setupTestApp(t)
	seedCatalog(t, store)

	wf := buildWorkflow(t, app)
	require.NoError(t, store.PutProject(&models.Project{ID: "proj-1", Name: "P1", WorkflowID: wf.ID}))

	resp, _ := doJSON(t, app, http.MethodDelete, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
