package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
)

var ErrStepBudgetExhausted = errors.New("step budget exhausted")

type Stage string

const (
	StagePrompt  Stage = "prompt"
	StagePlanner Stage = "planner"
	StageTool    Stage = "tool"
)

// FatalError ends a run. It is never retried.
type FatalError struct {
	Stage Stage
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// UserMessage names the stage and a classified cause. Upstream error text
// is left out; it goes to the log only.
func (e *FatalError) UserMessage() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.cause())
}

func (e *FatalError) cause() string {
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(e.Err, context.Canceled):
		return "cancelled"
	case errors.Is(e.Err, output.ErrPlannerAuth):
		return "authentication failed"
	case errors.Is(e.Err, output.ErrPlannerRateLimited):
		return "rate limited"
	case e.Stage == StagePlanner:
		return "upstream error"
	default:
		return "internal error"
	}
}
