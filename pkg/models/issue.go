package models

// Issue is the slice of an issue this core needs: its project scope and its
// current status. Everything else about issues lives outside the workflow
// engine.
type Issue struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	StatusID  string `json:"status_id"`
}

// Project binds a set of issues and boards to a single published workflow.
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	WorkflowID string `json:"workflow_id"`
}
