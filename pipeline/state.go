// Package pipeline runs the automation steps strictly in order with
// bounded retry. One failing step never skips forward; either it recovers
// within its budget or the run aborts.
package pipeline

import (
	"fmt"

	"github.com/zkkken/heidi/inject"
	"github.com/zkkken/heidi/types"
)

// State is the run lifecycle.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateRetrying  State = "RETRYING"
	StateAborted   State = "ABORTED"
	StateCompleted State = "COMPLETED"
)

// validTransitions guards the lifecycle. A transition outside this table is
// a bug in the orchestrator, not an operational failure.
var validTransitions = map[State][]State{
	StatePending:  {StateRunning},
	StateRunning:  {StateRetrying, StateAborted, StateCompleted, StateRunning},
	StateRetrying: {StateRunning, StateRetrying, StateAborted},
}

func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Action is what a step does.
type Action string

const (
	ActionNavigate Action = "NAVIGATE"
	ActionExtract  Action = "EXTRACT"
	ActionInject   Action = "INJECT"
	ActionSend     Action = "SEND"
)

// ParseAction converts a config action string.
func ParseAction(s string) (Action, error) {
	switch s {
	case "navigate":
		return ActionNavigate, nil
	case "extract":
		return ActionExtract, nil
	case "inject":
		return ActionInject, nil
	case "send":
		return ActionSend, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Step is one pipeline step definition.
type Step struct {
	ID     string
	Action Action
	// Target names the anchor for NAVIGATE, the document for INJECT.
	Target string
	// Description is the natural-language element description for the
	// vision locator.
	Description string
	// RetryBudget is how many times the step may be retried after its
	// first failure. Zero means one attempt total.
	RetryBudget int
}

// StepReport is the recorded outcome of one step.
type StepReport struct {
	StepID   string
	Action   Action
	Status   string // COMPLETED or FAILED
	Attempts int
	// Trust and DeviationPx describe the resolved point of a NAVIGATE.
	Trust       string
	DeviationPx float64
	// FailedFields carries per-field injection failures.
	FailedFields []inject.FieldFailure
	Err          string
}

// Report summarizes a run.
type Report struct {
	RunID             string
	State             State
	FurthestCompleted string
	Steps             []StepReport
	// Record is the merged extraction result, nil when no EXTRACT ran.
	Record *types.PatientRecord
	// SessionID is the documentation session a SEND step created, empty
	// when no SEND ran.
	SessionID string
}

// FailedFields flattens every field failure across steps.
func (r *Report) FailedFields() []inject.FieldFailure {
	var all []inject.FieldFailure
	for _, s := range r.Steps {
		all = append(all, s.FailedFields...)
	}
	return all
}
