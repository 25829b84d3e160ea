package file

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quarryhq/quarry/pkg/models"
	"github.com/quarryhq/quarry/pkg/persistence"
)

// WorkflowRepository handles workflow definition operations against the
// state file.
type WorkflowRepository struct {
	store *Persistence
}

func newRowID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate row ID: %w", err)
	}

	return id.String(), nil
}

// reissueGraphRowIDs gives copied steps and transitions their own row ids so
// a draft or clone never shares row identity with its source.
func reissueGraphRowIDs(wf *models.Workflow) error {
	for _, step := range wf.Steps {
		id, err := newRowID()
		if err != nil {
			return err
		}

		step.ID = id
	}

	for _, transition := range wf.Transitions {
		id, err := newRowID()
		if err != nil {
			return err
		}

		transition.ID = id
	}

	return nil
}

// findLocked returns the stored workflow pointer. Callers must hold a lock.
func (r *WorkflowRepository) findLocked(id string) *models.Workflow {
	for _, wf := range r.store.state.Workflows {
		if wf.ID == id {
			return wf
		}
	}

	return nil
}

func (r *WorkflowRepository) draftOfLocked(workflowID string) *models.Workflow {
	for _, wf := range r.store.state.Workflows {
		if wf.IsDraft && wf.DraftOf == workflowID {
			return wf
		}
	}

	return nil
}

// Create stores a new empty published workflow.
func (r *WorkflowRepository) Create(_ context.Context, name, description string) (*models.Workflow, error) {
	id, err := newRowID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          id,
		Name:        name,
		Description: description,
		Steps:       []*models.WorkflowStep{},
		Transitions: []*models.WorkflowTransition{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.state.Workflows = append(r.store.state.Workflows, workflow)

	if err := r.store.save(); err != nil {
		return nil, err
	}

	return cloneWorkflow(workflow), nil
}

// GetByID returns the workflow, or (nil, nil) when absent.
func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	workflow := r.findLocked(id)
	if workflow == nil {
		return nil, nil
	}

	return cloneWorkflow(workflow), nil
}

// List returns all workflows, drafts included, newest first.
func (r *WorkflowRepository) List(_ context.Context) ([]*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.store.state.Workflows))
	for _, wf := range r.store.state.Workflows {
		workflows = append(workflows, cloneWorkflow(wf))
	}

	for i, j := 0, len(workflows)-1; i < j; i, j = i+1, j-1 {
		workflows[i], workflows[j] = workflows[j], workflows[i]
	}

	return workflows, nil
}

// Delete removes a workflow along with any draft shadowing it. Absent
// workflows are a no-op.
func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.state.Workflows[:0]

	for _, wf := range r.store.state.Workflows {
		if wf.ID == id || (wf.IsDraft && wf.DraftOf == id) {
			continue
		}

		kept = append(kept, wf)
	}

	r.store.state.Workflows = kept

	return r.store.save()
}

// CreateDraft deep-copies a published workflow into a draft. The store lock
// serializes concurrent callers; the loser gets ErrDraftAlreadyExists.
func (r *WorkflowRepository) CreateDraft(_ context.Context, workflowID string) (*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	source := r.findLocked(workflowID)
	if source == nil {
		return nil, persistence.NewWorkflowError("CreateDraft", workflowID, persistence.ErrWorkflowNotFound)
	}

	if source.IsDraft {
		return nil, persistence.NewWorkflowError("CreateDraft", workflowID, persistence.ErrNotADraft)
	}

	if existing := r.draftOfLocked(workflowID); existing != nil {
		return nil, persistence.NewWorkflowError("CreateDraft", workflowID, persistence.ErrDraftAlreadyExists)
	}

	id, err := newRowID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	draft := cloneWorkflow(source)

	if err := reissueGraphRowIDs(draft); err != nil {
		return nil, err
	}

	draft.ID = id
	draft.IsDraft = true
	// The id may alias a caller-owned request buffer; detach it before it
	// lands in long-lived state.
	draft.DraftOf = strings.Clone(workflowID)
	draft.CreatedAt = now
	draft.UpdatedAt = now

	r.store.state.Workflows = append(r.store.state.Workflows, draft)

	if err := r.store.save(); err != nil {
		return nil, err
	}

	return cloneWorkflow(draft), nil
}

// GetDraft returns the draft shadowing the workflow, or (nil, nil).
func (r *WorkflowRepository) GetDraft(_ context.Context, workflowID string) (*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	draft := r.draftOfLocked(workflowID)
	if draft == nil {
		return nil, nil
	}

	return cloneWorkflow(draft), nil
}

// PublishDraft swaps the draft's graph into the shadowed published workflow
// and deletes the draft, all under the store lock.
func (r *WorkflowRepository) PublishDraft(_ context.Context, draftID string) (*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	draft := r.findLocked(draftID)
	if draft == nil {
		return nil, persistence.NewWorkflowError("PublishDraft", draftID, persistence.ErrDraftNotFound)
	}

	if !draft.IsDraft {
		return nil, persistence.NewWorkflowError("PublishDraft", draftID, persistence.ErrNotADraft)
	}

	target := r.findLocked(draft.DraftOf)
	if target == nil {
		return nil, persistence.NewWorkflowError("PublishDraft", draftID, persistence.ErrWorkflowNotFound)
	}

	content := cloneWorkflow(draft)
	target.Name = content.Name
	target.Description = content.Description
	target.Steps = content.Steps
	target.Transitions = content.Transitions
	target.UpdatedAt = time.Now().UTC()

	kept := r.store.state.Workflows[:0]

	for _, wf := range r.store.state.Workflows {
		if wf.ID != draftID {
			kept = append(kept, wf)
		}
	}

	r.store.state.Workflows = kept

	if err := r.store.save(); err != nil {
		return nil, err
	}

	return cloneWorkflow(target), nil
}

// DeleteDraft removes a draft row set; absent drafts are a no-op.
func (r *WorkflowRepository) DeleteDraft(_ context.Context, draftID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.state.Workflows[:0]

	for _, wf := range r.store.state.Workflows {
		if wf.ID != draftID || !wf.IsDraft {
			kept = append(kept, wf)
		}
	}

	r.store.state.Workflows = kept

	return r.store.save()
}

// Clone fully duplicates a workflow under a new published workflow.
func (r *WorkflowRepository) Clone(_ context.Context, sourceID, newName string) (*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	source := r.findLocked(sourceID)
	if source == nil {
		return nil, persistence.NewWorkflowError("Clone", sourceID, persistence.ErrWorkflowNotFound)
	}

	id, err := newRowID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	clone := cloneWorkflow(source)

	if err := reissueGraphRowIDs(clone); err != nil {
		return nil, err
	}

	clone.ID = id
	clone.Name = strings.Clone(newName)
	clone.IsDraft = false
	clone.DraftOf = ""
	clone.CreatedAt = now
	clone.UpdatedAt = now

	r.store.state.Workflows = append(r.store.state.Workflows, clone)

	if err := r.store.save(); err != nil {
		return nil, err
	}

	return cloneWorkflow(clone), nil
}

// AddStep appends a step to the workflow.
func (r *WorkflowRepository) AddStep(_ context.Context, workflowID string, step *models.WorkflowStep) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow := r.findLocked(workflowID)
	if workflow == nil {
		return persistence.NewWorkflowError("AddStep", workflowID, persistence.ErrWorkflowNotFound)
	}

	if workflow.StepFor(step.StatusID) != nil {
		return persistence.NewWorkflowError("AddStep", workflowID, persistence.ErrDuplicateStep)
	}

	if step.ID == "" {
		id, err := newRowID()
		if err != nil {
			return err
		}

		step.ID = id
	}

	stepCopy := *step
	workflow.Steps = append(workflow.Steps, &stepCopy)
	workflow.UpdatedAt = time.Now().UTC()

	return r.store.save()
}

// UpdateStep updates a step in place.
func (r *WorkflowRepository) UpdateStep(_ context.Context, workflowID string, step *models.WorkflowStep) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow := r.findLocked(workflowID)
	if workflow == nil {
		return persistence.NewWorkflowError("UpdateStep", workflowID, persistence.ErrWorkflowNotFound)
	}

	for i, existing := range workflow.Steps {
		if existing.ID == step.ID {
			if existing.StatusID != step.StatusID && workflow.StepFor(step.StatusID) != nil {
				return persistence.NewWorkflowError("UpdateStep", workflowID, persistence.ErrDuplicateStep)
			}

			stepCopy := *step
			workflow.Steps[i] = &stepCopy
			workflow.UpdatedAt = time.Now().UTC()

			return r.store.save()
		}
	}

	return persistence.NewWorkflowError("UpdateStep", workflowID, persistence.ErrStepNotFound)
}

// RemoveStep deletes the step binding the status along with every transition
// touching it.
func (r *WorkflowRepository) RemoveStep(_ context.Context, workflowID, statusID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow := r.findLocked(workflowID)
	if workflow == nil {
		return persistence.NewWorkflowError("RemoveStep", workflowID, persistence.ErrWorkflowNotFound)
	}

	if workflow.StepFor(statusID) == nil {
		return persistence.NewWorkflowError("RemoveStep", workflowID, persistence.ErrStepNotFound)
	}

	keptSteps := workflow.Steps[:0]

	for _, step := range workflow.Steps {
		if step.StatusID != statusID {
			keptSteps = append(keptSteps, step)
		}
	}

	workflow.Steps = keptSteps

	keptTransitions := workflow.Transitions[:0]

	for _, transition := range workflow.Transitions {
		if transition.FromStatusID != statusID && transition.ToStatusID != statusID {
			keptTransitions = append(keptTransitions, transition)
		}
	}

	workflow.Transitions = keptTransitions
	workflow.UpdatedAt = time.Now().UTC()

	return r.store.save()
}

// AddTransition appends a transition edge.
func (r *WorkflowRepository) AddTransition(_ context.Context, workflowID string, transition *models.WorkflowTransition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow := r.findLocked(workflowID)
	if workflow == nil {
		return persistence.NewWorkflowError("AddTransition", workflowID, persistence.ErrWorkflowNotFound)
	}

	for _, existing := range workflow.Transitions {
		if existing.FromStatusID == transition.FromStatusID && existing.ToStatusID == transition.ToStatusID {
			return persistence.NewWorkflowError("AddTransition", workflowID, persistence.ErrDuplicateTransition)
		}
	}

	if transition.ID == "" {
		id, err := newRowID()
		if err != nil {
			return err
		}

		transition.ID = id
	}

	transitionCopy := *transition
	workflow.Transitions = append(workflow.Transitions, &transitionCopy)
	workflow.UpdatedAt = time.Now().UTC()

	return r.store.save()
}

// UpdateTransition updates a transition edge in place.
func (r *WorkflowRepository) UpdateTransition(_ context.Context, workflowID string, transition *models.WorkflowTransition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow := r.findLocked(workflowID)
	if workflow == nil {
		return persistence.NewWorkflowError("UpdateTransition", workflowID, persistence.ErrWorkflowNotFound)
	}

	for i, existing := range workflow.Transitions {
		if existing.ID == transition.ID {
			transitionCopy := *transition
			workflow.Transitions[i] = &transitionCopy
			workflow.UpdatedAt = time.Now().UTC()

			return r.store.save()
		}
	}

	return persistence.NewWorkflowError("UpdateTransition", workflowID, persistence.ErrTransitionNotFound)
}

// RemoveTransition deletes a transition edge.
func (r *WorkflowRepository) RemoveTransition(_ context.Context, workflowID, transitionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow := r.findLocked(workflowID)
	if workflow == nil {
		return persistence.NewWorkflowError("RemoveTransition", workflowID, persistence.ErrWorkflowNotFound)
	}

	for i, existing := range workflow.Transitions {
		if existing.ID == transitionID {
			workflow.Transitions = append(workflow.Transitions[:i], workflow.Transitions[i+1:]...)
			workflow.UpdatedAt = time.Now().UTC()

			return r.store.save()
		}
	}

	return persistence.NewWorkflowError("RemoveTransition", workflowID, persistence.ErrTransitionNotFound)
}
