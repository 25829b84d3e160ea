// Package workflow provides the in-memory graph model over a workflow's
// steps and transitions. A Graph is rebuilt from storage for every use and
// discarded afterwards, so it is always consistent with persisted state at
// construction time.
package workflow

import (
	"fmt"
	"sort"

	"github.com/quarryhq/quarry/pkg/models"
)

// Graph error codes returned by Validate.
const (
	GraphErrNoSteps             = "no_steps"
	GraphErrDuplicateStep       = "duplicate_step"
	GraphErrOrphanFrom          = "orphan_transition_from"
	GraphErrOrphanTo            = "orphan_transition_to"
	GraphErrDuplicateTransition = "duplicate_transition"
)

// GraphError describes one structural problem found in a workflow graph.
// Validation failures are data, not exceptions: Validate returns a list and
// the caller decides whether to block a save or publish.
type GraphError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	StatusID     string `json:"status_id,omitempty"`
	TransitionID string `json:"transition_id,omitempty"`
}

func (e GraphError) String() string {
	return e.Code + ": " + e.Message
}

// Graph is the adjacency view of one workflow. Nodes are keyed by status id,
// since a status appears at most once per workflow.
type Graph struct {
	workflowID string
	workflow   *models.Workflow
	steps      map[string]*models.WorkflowStep
	edges      map[string]map[string]*models.WorkflowTransition
}

// NewGraph builds the adjacency structure for a loaded workflow. The input
// is not copied; callers must not mutate the workflow while using the graph.
func NewGraph(wf *models.Workflow) *Graph {
	g := &Graph{
		workflowID: wf.ID,
		workflow:   wf,
		steps:      make(map[string]*models.WorkflowStep, len(wf.Steps)),
		edges:      make(map[string]map[string]*models.WorkflowTransition),
	}

	for _, step := range wf.Steps {
		if _, exists := g.steps[step.StatusID]; !exists {
			g.steps[step.StatusID] = step
		}
	}

	for _, transition := range wf.Transitions {
		targets, ok := g.edges[transition.FromStatusID]
		if !ok {
			targets = make(map[string]*models.WorkflowTransition)
			g.edges[transition.FromStatusID] = targets
		}

		if _, exists := targets[transition.ToStatusID]; !exists {
			targets[transition.ToStatusID] = transition
		}
	}

	return g
}

// WorkflowID returns the id of the workflow this graph was built from.
func (g *Graph) WorkflowID() string {
	return g.workflowID
}

// HasStep reports whether the given status is a step of the workflow.
func (g *Graph) HasStep(statusID string) bool {
	_, ok := g.steps[statusID]

	return ok
}

// StepCount returns the number of distinct steps.
func (g *Graph) StepCount() int {
	return len(g.steps)
}

// IsValidTransition reports whether moving an issue from one status to the
// other is legal: both must be steps of the workflow and a directed edge must
// exist between them. Self-loop edges make (A, A) valid.
func (g *Graph) IsValidTransition(fromStatusID, toStatusID string) bool {
	return g.Transition(fromStatusID, toStatusID) != nil
}

// Transition returns the edge between the two statuses, or nil when none
// exists or either endpoint is not a step.
func (g *Graph) Transition(fromStatusID, toStatusID string) *models.WorkflowTransition {
	if !g.HasStep(fromStatusID) || !g.HasStep(toStatusID) {
		return nil
	}

	targets, ok := g.edges[fromStatusID]
	if !ok {
		return nil
	}

	return targets[toStatusID]
}

// ReachableSteps returns the status ids reachable from the given status by
// exactly one legal transition, sorted for stable output. An unknown status
// yields an empty slice.
func (g *Graph) ReachableSteps(fromStatusID string) []string {
	reachable := make([]string, 0)

	if !g.HasStep(fromStatusID) {
		return reachable
	}

	for toStatusID := range g.edges[fromStatusID] {
		if g.HasStep(toStatusID) {
			reachable = append(reachable, toStatusID)
		}
	}

	sort.Strings(reachable)

	return reachable
}

// Validate checks the structural invariants of the workflow graph: at least
// one step, no status bound by more than one step, no transition referencing
// a status that is not a step, and no duplicate (from, to) edges. It returns
// an empty list for a valid graph and never fails.
func (g *Graph) Validate() []GraphError {
	errs := make([]GraphError, 0)

	if g.StepCount() == 0 {
		errs = append(errs, GraphError{
			Code:    GraphErrNoSteps,
			Message: "workflow has no steps",
		})
	}

	seenSteps := make(map[string]bool, len(g.workflow.Steps))

	for _, step := range g.workflow.Steps {
		if seenSteps[step.StatusID] {
			errs = append(errs, GraphError{
				Code:     GraphErrDuplicateStep,
				Message:  fmt.Sprintf("status %s is bound by more than one step", step.StatusID),
				StatusID: step.StatusID,
			})
		}

		seenSteps[step.StatusID] = true
	}

	seenEdges := make(map[string]bool, len(g.workflow.Transitions))

	for _, transition := range g.workflow.Transitions {
		if !seenSteps[transition.FromStatusID] {
			errs = append(errs, GraphError{
				Code:         GraphErrOrphanFrom,
				Message:      fmt.Sprintf("transition %q starts at status %s, which is not a step", transition.Name, transition.FromStatusID),
				StatusID:     transition.FromStatusID,
				TransitionID: transition.ID,
			})
		}

		if !seenSteps[transition.ToStatusID] {
			errs = append(errs, GraphError{
				Code:         GraphErrOrphanTo,
				Message:      fmt.Sprintf("transition %q ends at status %s, which is not a step", transition.Name, transition.ToStatusID),
				StatusID:     transition.ToStatusID,
				TransitionID: transition.ID,
			})
		}

		edgeKey := transition.FromStatusID + "\x00" + transition.ToStatusID
		if seenEdges[edgeKey] {
			errs = append(errs, GraphError{
				Code:         GraphErrDuplicateTransition,
				Message:      fmt.Sprintf("more than one transition from %s to %s", transition.FromStatusID, transition.ToStatusID),
				TransitionID: transition.ID,
			})
		}

		seenEdges[edgeKey] = true
	}

	return errs
}
