package output

import (
	"context"
	"errors"
	"net/http"
)

// PlannerPort produces the next completion for a fully rendered prompt.
type PlannerPort interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompletionCache stores completions by a key derived from the prompt and
// model parameters. Implementations must be safe for concurrent use.
type CompletionCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Planner adapters wrap upstream failures with one of these so callers can
// report them without quoting the provider's response.
var (
	ErrPlannerAuth        = errors.New("planner rejected the credentials")
	ErrPlannerRateLimited = errors.New("planner rate limited")
	ErrPlannerUnavailable = errors.New("planner unavailable")
)

// PlannerStatusError maps an upstream HTTP status to a planner sentinel.
func PlannerStatusError(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrPlannerAuth
	case http.StatusTooManyRequests:
		return ErrPlannerRateLimited
	default:
		return ErrPlannerUnavailable
	}
}
