package models

// Board is a project's kanban view. Columns are derived from the project's
// published workflow; the board column synchronizer is the only writer of
// columns inside this core.
type Board struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id" validate:"required"`
	Name      string         `json:"name"       validate:"required"`
	Columns   []*BoardColumn `json:"columns"`
}

// BoardColumn maps onto one or more workflow steps. Min and Max are optional
// WIP limits; nil means unconstrained.
type BoardColumn struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" validate:"required"`
	Position  int      `json:"position"`
	StatusIDs []string `json:"status_ids"`
	MinIssues *int     `json:"min_issues,omitempty"`
	MaxIssues *int     `json:"max_issues,omitempty"`
}

// MapsStatus reports whether the column includes the given status.
func (c *BoardColumn) MapsStatus(statusID string) bool {
	for _, id := range c.StatusIDs {
		if id == statusID {
			return true
		}
	}

	return false
}
