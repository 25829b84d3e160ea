package models

import "time"

// Workflow is a named directed graph of statuses (steps) and the legal
// transitions between them. A workflow is either published, in which case
// projects may bind to it, or a draft shadowing a published workflow. Drafts
// are invisible to runtime transition checks until published.
type Workflow struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description"`
	IsDraft     bool                  `json:"is_draft"`
	DraftOf     string                `json:"draft_of,omitempty"`
	Steps       []*WorkflowStep       `json:"steps"`
	Transitions []*WorkflowTransition `json:"transitions"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// StepFor returns the step binding the given status, or nil.
func (w *Workflow) StepFor(statusID string) *WorkflowStep {
	for _, step := range w.Steps {
		if step.StatusID == statusID {
			return step
		}
	}

	return nil
}

// StatusIDs returns the status ids of all steps in declaration order.
func (w *Workflow) StatusIDs() []string {
	ids := make([]string, 0, len(w.Steps))
	for _, step := range w.Steps {
		ids = append(ids, step.StatusID)
	}

	return ids
}

// WorkflowStep is one node of the workflow graph: a workflow-scoped binding
// of a catalog status. Position is an ordering hint for editors and board
// generation, not a semantic constraint.
type WorkflowStep struct {
	ID       string `json:"id"`
	StatusID string `json:"status_id" validate:"required"`
	Position int    `json:"position"  validate:"min=0"`
}

// WorkflowTransition is one edge of the workflow graph. Transitions are
// uniquely identified by their (from, to) status pair within a workflow;
// self-loops are permitted. RuleRef optionally names a condition predicate
// evaluated elsewhere; this core never interprets it.
type WorkflowTransition struct {
	ID           string `json:"id"`
	Name         string `json:"name"           validate:"required"`
	FromStatusID string `json:"from_status_id" validate:"required"`
	ToStatusID   string `json:"to_status_id"   validate:"required"`
	RuleRef      string `json:"rule_ref,omitempty"`
}
