package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/btorch/internal/jobs"
)

type progress struct{ Current int }
type result struct{ Rows int }

func newPool(slots int) (*jobs.Registry[string, progress, result], *Pool[string, progress, result]) {
	reg := jobs.NewRegistry[string, progress, result](8)
	pool := New(reg, slots, nil)
	return reg, pool
}

func waitTerminal(t *testing.T, reg *jobs.Registry[string, progress, result], id string, d time.Duration) jobs.Snapshot[string, progress, result] {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		snap, err := reg.Get(id)
		require.NoError(t, err)
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return jobs.Snapshot[string, progress, result]{}
}

func TestSubmit_NormalReturnCompletesJob(t *testing.T) {
	reg, pool := newPool(2)
	id, ctx := reg.Create("sync", "payload")

	pool.Submit(ctx, id, 0, func(ctx context.Context, report Report[progress]) (result, error) {
		report(progress{Current: 1}, "working")
		return result{Rows: 5}, nil
	})

	snap := waitTerminal(t, reg, id, time.Second)
	assert.Equal(t, jobs.StatusCompleted, snap.Status)
	assert.Equal(t, 5, snap.Result.Rows)
}

func TestSubmit_ErrorFailsJob(t *testing.T) {
	reg, pool := newPool(2)
	id, ctx := reg.Create("sync", "payload")
	boom := errors.New("boom")

	pool.Submit(ctx, id, 0, func(ctx context.Context, report Report[progress]) (result, error) {
		return result{}, boom
	})

	snap := waitTerminal(t, reg, id, time.Second)
	assert.Equal(t, jobs.StatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.Error)
}

func TestSubmit_TimeoutFailsJobWithTimedOutMessage(t *testing.T) {
	reg, pool := newPool(2)
	id, ctx := reg.Create("sync", "payload")

	started := make(chan struct{})
	pool.Submit(ctx, id, 20*time.Millisecond, func(ctx context.Context, report Report[progress]) (result, error) {
		close(started)
		<-ctx.Done()
		return result{}, ctx.Err()
	})

	<-started
	snap := waitTerminal(t, reg, id, time.Second)
	assert.Equal(t, jobs.StatusFailed, snap.Status)
	assert.Equal(t, "timed out", snap.Error)
}

// A cancelled job never reaches completed (invariant 6).
func TestSubmit_CancelWhileRunningFinalizesCancelled(t *testing.T) {
	reg, pool := newPool(2)
	id, ctx := reg.Create("sync", "payload")

	started := make(chan struct{})
	blockedReturn := make(chan struct{})
	pool.Submit(ctx, id, 0, func(ctx context.Context, report Report[progress]) (result, error) {
		close(started)
		<-ctx.Done()
		close(blockedReturn)
		return result{}, ctx.Err()
	})

	<-started
	require.NoError(t, reg.Cancel(id))

	snap := waitTerminal(t, reg, id, time.Second)
	assert.Equal(t, jobs.StatusCancelled, snap.Status)

	select {
	case <-blockedReturn:
	case <-time.After(time.Second):
		t.Fatal("body never observed cancellation")
	}
}

func TestSubmit_CancelWhileQueuedDoesNotConsumeSlot(t *testing.T) {
	reg, pool := newPool(1)

	// Occupy the only slot with a long-running job.
	occupant, occupantCtx := reg.Create("sync", "p")
	release := make(chan struct{})
	pool.Submit(occupantCtx, occupant, 0, func(ctx context.Context, report Report[progress]) (result, error) {
		<-release
		return result{}, nil
	})

	queuedID, queuedCtx := reg.Create("sync", "p")
	pool.Submit(queuedCtx, queuedID, 0, func(ctx context.Context, report Report[progress]) (result, error) {
		t.Fatal("queued body must never run once cancelled before acquiring a slot")
		return result{}, nil
	})

	require.NoError(t, reg.Cancel(queuedID))
	snap := waitTerminal(t, reg, queuedID, time.Second)
	assert.Equal(t, jobs.StatusCancelled, snap.Status)

	close(release)
	occupantSnap := waitTerminal(t, reg, occupant, time.Second)
	assert.Equal(t, jobs.StatusCompleted, occupantSnap.Status)
}

func TestSubmit_PanicInBodyFailsJob(t *testing.T) {
	reg, pool := newPool(2)
	id, ctx := reg.Create("sync", "payload")

	pool.Submit(ctx, id, 0, func(ctx context.Context, report Report[progress]) (result, error) {
		panic("kaboom")
	})

	snap := waitTerminal(t, reg, id, time.Second)
	assert.Equal(t, jobs.StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "kaboom")
}

func TestConcurrencySlots_BoundConcurrentBodies(t *testing.T) {
	reg, pool := newPool(2)
	active := make(chan struct{}, 10)
	maxSeen := 0
	var ids []string

	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		id, ctx := reg.Create("sync", "p")
		ids = append(ids, id)
		pool.Submit(ctx, id, 0, func(ctx context.Context, report Report[progress]) (result, error) {
			active <- struct{}{}
			<-release
			<-active
			return result{}, nil
		})
	}

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(active), 2)
	maxSeen = len(active)
	assert.Equal(t, 2, maxSeen)

	close(release)
	for _, id := range ids {
		waitTerminal(t, reg, id, time.Second)
	}
}
