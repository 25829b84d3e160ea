package models

// ProjectSyncError records a per-project board synchronization failure during
// publish. Failures are data on the publish result, never a failure of the
// publish itself.
type ProjectSyncError struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
}

// PublishResult is the outcome of publishing a draft: the updated published
// workflow plus the board synchronization fan-out report.
type PublishResult struct {
	Workflow           *Workflow          `json:"workflow"`
	AffectedProjectIDs []string           `json:"affected_project_ids"`
	BoardsUpdated      int                `json:"boards_updated"`
	SyncErrors         []ProjectSyncError `json:"sync_errors"`
}

// TransitionResult is the outcome of a requested issue status change. An
// illegal move is a routine rejection, not an error: Success is false and
// Error carries the user-facing reason.
type TransitionResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	IssueID    string `json:"issue_id"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
}

// StepRemovalCheck reports whether a step can be removed from a workflow and
// how many live issues currently hold its status.
type StepRemovalCheck struct {
	Allowed    bool `json:"allowed"`
	IssueCount int  `json:"issue_count"`
}
