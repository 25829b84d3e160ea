// Package models defines the core domain models for the workflow engine.
package models

// StatusCategory groups statuses into the three broad lifecycle phases used
// for board column ordering.
type StatusCategory string

const (
	StatusCategoryTodo       StatusCategory = "todo"
	StatusCategoryInProgress StatusCategory = "in_progress"
	StatusCategoryDone       StatusCategory = "done"
)

// Rank returns the board ordering position of a category. Unknown categories
// sort last so malformed catalog data never hides a column.
func (c StatusCategory) Rank() int {
	switch c {
	case StatusCategoryTodo:
		return 0
	case StatusCategoryInProgress:
		return 1
	case StatusCategoryDone:
		return 2
	default:
		return 3
	}
}

// Status is one entry of the status catalog. The catalog is owned outside
// this core; statuses are referenced by id everywhere else.
type Status struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"     validate:"required"`
	Category StatusCategory `json:"category" validate:"required,oneof=todo in_progress done"`
}
