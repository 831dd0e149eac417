package ratelimiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownPlanDegradesToFree(t *testing.T) {
	l := New(Plan("nonexistent"))
	free := New(PlanFree)
	assert.Equal(t, free.Interval(), l.Interval())
}

func TestAcquire_FirstCallDoesNotWait(t *testing.T) {
	l := New(PlanPremium)
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

// S3: FIFO rate limit. Premium interval ~132ms. Three concurrent acquires
// complete in submission order with gaps >= interval * 0.9.
func TestAcquire_FIFOOrdering(t *testing.T) {
	l := New(PlanPremium)
	require.NoError(t, l.Acquire(context.Background())) // consume the free first slot

	const n = 3
	start := make(chan struct{})
	order := make([]int, 0, n)
	times := make([]time.Time, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// Stagger submission so arrival order is deterministic.
			time.Sleep(time.Duration(i) * time.Millisecond)
			require.NoError(t, l.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			times = append(times, time.Now())
			mu.Unlock()
		}(i)
	}

	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i])
	}
	for i := 1; i < n; i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), l.Interval()*9/10)
	}
}

func TestAcquire_CancelledDoesNotBumpTimestamp(t *testing.T) {
	l := New(PlanFree) // interval ~13.2s
	require.NoError(t, l.Acquire(context.Background()))
	l.mu.Lock()
	first := l.last
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Because the cancelled waiter never bumped `last`, a fresh waiter still
	// has to wait out (most of) the original interval rather than starting a
	// new one from the cancelled attempt.
	l.mu.Lock()
	last := l.last
	l.mu.Unlock()
	assert.Equal(t, first, last)
}

func TestAcquire_RespectsMinimumInterval(t *testing.T) {
	l := New(PlanStandard)
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, l.Interval()*9/10)
}
