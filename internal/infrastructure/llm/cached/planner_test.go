package cached

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/cache"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPlanner struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingPlanner) Complete(_ context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return "", c.err
	}
	return "completion for " + prompt, nil
}

func TestPlanner_CachesByPromptAndParams(t *testing.T) {
	next := &countingPlanner{}
	store := cache.NewMemory(10, 0)
	planner := New(next, store, logger.NewNop(), "openai", "gpt-4o", "0")

	first, err := planner.Complete(context.Background(), "p1")
	require.NoError(t, err)
	second, err := planner.Complete(context.Background(), "p1")
	require.NoError(t, err)
	_, err = planner.Complete(context.Background(), "p2")
	require.NoError(t, err)

	assert.Equal(t, "completion for p1", first)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 2, next.calls.Load())

	other := New(next, store, logger.NewNop(), "openai", "gpt-4o", "0.7")
	_, err = other.Complete(context.Background(), "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, next.calls.Load())
}

func TestPlanner_ConcurrentMissesShareOneCall(t *testing.T) {
	next := &countingPlanner{delay: 50 * time.Millisecond}
	planner := New(next, cache.NewMemory(10, 0), logger.NewNop(), "m")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := planner.Complete(context.Background(), "same")
			assert.NoError(t, err)
			assert.Equal(t, "completion for same", out)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, next.calls.Load())
}

func TestPlanner_DoesNotCacheErrors(t *testing.T) {
	next := &countingPlanner{err: errors.New("rate limited")}
	store := cache.NewMemory(10, 0)
	planner := New(next, store, logger.NewNop(), "m")

	_, err := planner.Complete(context.Background(), "p")
	assert.ErrorContains(t, err, "rate limited")
	_, err = planner.Complete(context.Background(), "p")
	assert.Error(t, err)

	assert.EqualValues(t, 2, next.calls.Load())
	assert.Equal(t, 0, store.Len())
}

type slowPlanner struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *slowPlanner) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
		return "completion for " + prompt, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestPlanner_CallerDeadlineDoesNotFailOtherRuns(t *testing.T) {
	next := &slowPlanner{delay: 200 * time.Millisecond}
	planner := New(next, cache.NewMemory(10, 0), logger.NewNop(), "m")

	shortErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := planner.Complete(ctx, "same")
		shortErr <- err
	}()
	time.Sleep(5 * time.Millisecond)

	out, err := planner.Complete(context.Background(), "same")
	require.NoError(t, err)
	assert.Equal(t, "completion for same", out)
	assert.ErrorIs(t, <-shortErr, context.DeadlineExceeded)
	assert.EqualValues(t, 1, next.calls.Load())

	_, err = planner.Complete(context.Background(), "same")
	require.NoError(t, err)
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestPlanner_CallTimeoutBoundsSharedCall(t *testing.T) {
	next := &slowPlanner{delay: time.Second}
	planner := New(next, cache.NewMemory(10, 0), logger.NewNop(), "m").WithCallTimeout(20 * time.Millisecond)

	_, err := planner.Complete(context.Background(), "p")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
