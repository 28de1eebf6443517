package entity

import (
	"context"
	"errors"
	"fmt"
)

type TerminationReason string

const (
	TerminatedFinalAnswer         TerminationReason = "final_answer"
	TerminatedStepBudgetExhausted TerminationReason = "step_budget_exhausted"
	TerminatedFatalError          TerminationReason = "fatal_error"
)

// Step is one planner cycle: the parsed action and what came back from it.
type Step struct {
	Index       int
	Action      Action
	Observation string
}

// Transcript is the running history of a single run.
type Transcript struct {
	Query string
	Steps []Step
}

func (t *Transcript) Append(action Action, observation string) Step {
	step := Step{
		Index:       len(t.Steps) + 1,
		Action:      action,
		Observation: observation,
	}
	t.Steps = append(t.Steps, step)
	return step
}

type RunResult struct {
	RunID            string
	Query            string
	FinalAnswer      *string
	Steps            []Step
	TerminatedReason TerminationReason
	Err              error
}

func (r *RunResult) Succeeded() bool {
	return r.TerminatedReason == TerminatedFinalAnswer && r.FinalAnswer != nil
}

// FailureCause is implemented by errors that can describe themselves to a
// user without exposing upstream detail.
type FailureCause interface {
	UserMessage() string
}

// FailureMessage is the text shown to a user for a failed run. Only fixed
// messages are used; the error itself is for logs.
func (r *RunResult) FailureMessage() string {
	switch r.TerminatedReason {
	case TerminatedFinalAnswer:
		return ""
	case TerminatedStepBudgetExhausted:
		return fmt.Sprintf("the agent stopped after %d steps without reaching an answer", len(r.Steps))
	default:
		var cause FailureCause
		switch {
		case errors.As(r.Err, &cause):
			return "the agent failed: " + cause.UserMessage()
		case errors.Is(r.Err, context.DeadlineExceeded):
			return "the agent failed: timed out"
		case errors.Is(r.Err, context.Canceled):
			return "the agent failed: cancelled"
		default:
			return "the agent failed"
		}
	}
}
