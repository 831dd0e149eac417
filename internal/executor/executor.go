// Package executor runs job bodies against a bounded concurrency pool and
// translates their outcome into job registry transitions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/btorch/internal/jobs"
)

// DefaultSyncTimeout is the conventional hard timeout for a "sync" job. Pool
// does not apply it on its own: Submit with a non-positive timeout runs the
// body with no timeout at all.
const DefaultSyncTimeout = 35 * time.Minute

// Report lets a running body push a progress update without reaching back
// into the registry directly.
type Report[P any] func(progress P, message string)

// Body is a job's unit of work. It must observe ctx and return promptly once
// ctx is done; returning a non-nil error fails the job, and observing
// ctx.Err() and returning it is how a body cooperates with cancellation.
type Body[P any, R any] func(ctx context.Context, report Report[P]) (R, error)

// Pool admits jobs subject to a global concurrency slot and runs their
// bodies, reporting outcomes back to the registry.
type Pool[D any, P any, R any] struct {
	registry *jobs.Registry[D, P, R]
	sem      chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// New builds a Pool with the given number of concurrency slots.
func New[D any, P any, R any](registry *jobs.Registry[D, P, R], slots int, logger *slog.Logger) *Pool[D, P, R] {
	if slots <= 0 {
		slots = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool[D, P, R]{
		registry: registry,
		sem:      make(chan struct{}, slots),
		logger:   logger.With("component", "executor"),
	}
}

// Submit returns immediately and runs body in the background once a slot is
// available. ctx is the job's cancellation handle, as returned by
// Registry.Create; timeout, if positive, is the job's hard budget.
func (p *Pool[D, P, R]) Submit(ctx context.Context, jobID string, timeout time.Duration, body Body[P, R]) {
	p.wg.Add(1)
	go p.run(ctx, jobID, timeout, body)
}

// Wait blocks until every submitted body has returned. Intended for use
// during graceful shutdown, typically bounded by a deadline on ctx upstream.
func (p *Pool[D, P, R]) Wait() {
	p.wg.Wait()
}

func (p *Pool[D, P, R]) run(ctx context.Context, jobID string, timeout time.Duration, body Body[P, R]) {
	defer p.wg.Done()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		// Cancelled while queued for a slot: no slot was taken, so none is
		// released. The registry already finalized a pending cancellation
		// synchronously; this is a no-op if so.
		if err := p.registry.FinalizeCancelled(jobID); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			p.logger.Warn("finalize cancelled job failed", "job_id", jobID, "error", err)
		}
		return
	}
	defer func() { <-p.sem }()

	if err := p.registry.Start(jobID); err != nil {
		p.logger.Warn("could not start job", "job_id", jobID, "error", err)
		return
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report := func(progress P, message string) {
		if err := p.registry.UpdateProgress(jobID, progress, message); err != nil && !errors.Is(err, jobs.ErrInvalidTransition) {
			p.logger.Warn("progress update failed", "job_id", jobID, "error", err)
		}
	}

	type outcome struct {
		result R
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("job body panicked: %v", rec)}
			}
		}()
		result, err := body(runCtx, report)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		p.finish(jobID, o.result, o.err)
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			if err := p.registry.Fail(jobID, "timed out"); err != nil {
				p.logger.Warn("fail (timeout) transition rejected", "job_id", jobID, "error", err)
			}
		} else {
			if err := p.registry.FinalizeCancelled(jobID); err != nil {
				p.logger.Warn("finalize cancelled transition rejected", "job_id", jobID, "error", err)
			}
		}
		// The body is still running; drain its result in the background so
		// its goroutine is never leaked, without blocking this slot's owner
		// any further than the timeout/cancellation already dictated.
		go func() { <-done }()
	}
}

func (p *Pool[D, P, R]) finish(jobID string, result R, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if ferr := p.registry.FinalizeCancelled(jobID); ferr != nil {
				p.logger.Warn("finalize cancelled transition rejected", "job_id", jobID, "error", ferr)
			}
			return
		}
		if ferr := p.registry.Fail(jobID, err.Error()); ferr != nil {
			p.logger.Warn("fail transition rejected", "job_id", jobID, "error", ferr)
		}
		return
	}
	if ferr := p.registry.Complete(jobID, result); ferr != nil {
		p.logger.Warn("complete transition rejected", "job_id", jobID, "error", ferr)
	}
}
