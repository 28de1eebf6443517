// Package cached memoizes planner completions.
package cached

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/cache"
)

var _ output.PlannerPort = (*Planner)(nil)

// DefaultCallTimeout bounds a shared upstream call.
const DefaultCallTimeout = 2 * time.Minute

// Planner wraps a planner with a completion cache. Concurrent misses for
// the same prompt share one upstream call. Errors are never cached.
//
// The shared call is detached from the caller that started it: each caller
// waits on its own context, and one caller giving up does not fail the
// others.
type Planner struct {
	next        output.PlannerPort
	cache       output.CompletionCache
	params      []string
	group       singleflight.Group
	callTimeout time.Duration
	logger      output.LoggerPort
}

// New keys entries on params (provider, model, temperature) and the prompt.
func New(next output.PlannerPort, c output.CompletionCache, logger output.LoggerPort, params ...string) *Planner {
	return &Planner{next: next, cache: c, params: params, callTimeout: DefaultCallTimeout, logger: logger}
}

// WithCallTimeout bounds each upstream call; 0 leaves it unbounded.
func (p *Planner) WithCallTimeout(d time.Duration) *Planner {
	p.callTimeout = d
	return p
}

func (p *Planner) Complete(ctx context.Context, prompt string) (string, error) {
	key := cache.HashKey(append(append([]string{}, p.params...), prompt)...)
	if v, ok := p.cache.Get(key); ok {
		p.logger.Debug("completion cache hit", "key", key[:12])
		return v, nil
	}

	results := p.group.DoChan(key, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if p.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, p.callTimeout)
			defer cancel()
		}
		completion, err := p.next.Complete(callCtx, prompt)
		if err != nil {
			return "", err
		}
		p.cache.Set(key, completion)
		return completion, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		p.logger.Debug("completion cache miss", "key", key[:12], "shared", res.Shared)
		return res.Val.(string), nil
	}
}
