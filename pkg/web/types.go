// Package web provides HTTP request and response types for the workflow API.
package web

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
}

// CloneWorkflowRequest represents the request body for cloning a workflow.
type CloneWorkflowRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

// AddStepRequest represents the request body for binding a status to a
// workflow as a new step.
type AddStepRequest struct {
	StatusID string `json:"status_id" validate:"required"`
	Position int    `json:"position"  validate:"min=0"`
}

// UpdateStepRequest represents the request body for rewriting a step.
type UpdateStepRequest struct {
	ID       string `json:"id"        validate:"required"`
	StatusID string `json:"status_id" validate:"required"`
	Position int    `json:"position"  validate:"min=0"`
}

// AddTransitionRequest represents the request body for adding a transition.
type AddTransitionRequest struct {
	Name         string `json:"name"           validate:"required"`
	FromStatusID string `json:"from_status_id" validate:"required"`
	ToStatusID   string `json:"to_status_id"   validate:"required"`
	RuleRef      string `json:"rule_ref,omitempty"`
}

// UpdateTransitionRequest represents the request body for rewriting a
// transition.
type UpdateTransitionRequest struct {
	ID           string `json:"id"             validate:"required"`
	Name         string `json:"name"           validate:"required"`
	FromStatusID string `json:"from_status_id" validate:"required"`
	ToStatusID   string `json:"to_status_id"   validate:"required"`
	RuleRef      string `json:"rule_ref,omitempty"`
}

// ExecuteTransitionRequest represents the request body for moving an issue to
// a new status.
type ExecuteTransitionRequest struct {
	ToStatusID string `json:"to_status_id" validate:"required"`
}

// AllowedTargetsResponse lists the status ids an issue may move to.
type AllowedTargetsResponse struct {
	IssueID string   `json:"issue_id"`
	Targets []string `json:"targets"`
}
