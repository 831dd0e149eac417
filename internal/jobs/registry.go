// Package jobs implements the process-local job control plane: a registry
// that owns every job's authoritative status and history, and the bounded
// per-job subscriptions that back the SSE broadcaster. The registry is
// generic over the job kind's data, progress, and result shapes so callers
// never resort to a stringly-typed payload.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is one of the job state machine's five states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether status ends the job's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Frame is one event pushed to a subscriber. Sentinel is true only on the
// final frame delivered for a subscription: the job's terminal status and
// result payload, doubling as the end-of-stream marker, so there is exactly
// one guaranteed-delivery push per subscription rather than a terminal
// frame and a separate sentinel competing for the same queue slot.
type Frame[P any, R any] struct {
	JobID     string
	Status    Status
	Progress  P
	Message   string
	Error     string
	Result    R
	HasResult bool
	Sentinel  bool
}

// Snapshot is a point-in-time copy of a job's state, safe to hand to a
// caller outside the registry's lock.
type Snapshot[D any, P any, R any] struct {
	ID          string
	Kind        string
	Status      Status
	Data        D
	Progress    P
	Message     string
	Error       string
	Result      R
	HasResult   bool
	Cancelled   bool
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Subscription is a bounded FIFO queue of Frames for one job, owned by one
// SSE connection.
type Subscription[P any, R any] struct {
	jobID string
	ch    chan Frame[P, R]
}

// Events returns the channel subscribers should range/select over.
func (s *Subscription[P, R]) Events() <-chan Frame[P, R] { return s.ch }

type job[D any, P any, R any] struct {
	id        string
	kind      string
	status    Status
	data      D
	progress  P
	message   string
	errMsg    string
	result    R
	hasResult bool
	cancelled bool

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	cancel context.CancelFunc

	subs map[*Subscription[P, R]]struct{}
}

// Registry owns every job's authoritative state. All mutation goes through
// its methods, which hold a single mutex for the lifetime of the map/slice
// access only; broadcasting to subscriber channels happens without holding
// it, since a channel send to a bounded, non-blocking queue never suspends.
type Registry[D any, P any, R any] struct {
	mu        sync.Mutex
	jobs      map[string]*job[D, P, R]
	queueSize int
}

// NewRegistry builds an empty Registry. queueSize bounds each subscription's
// frame buffer; when full, the oldest non-terminal frame is dropped to make
// room rather than blocking the producer.
func NewRegistry[D any, P any, R any](queueSize int) *Registry[D, P, R] {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Registry[D, P, R]{
		jobs:      make(map[string]*job[D, P, R]),
		queueSize: queueSize,
	}
}

// Create admits a new job in status pending and returns its id plus a
// context that is cancelled when the job is cancelled while pending or
// running. The executor runs the job body with this context as its
// cancellation handle.
func (r *Registry[D, P, R]) Create(kind string, data D) (string, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	id := ulid.Make().String()

	j := &job[D, P, R]{
		id:        id,
		kind:      kind,
		status:    StatusPending,
		data:      data,
		createdAt: time.Now(),
		cancel:    cancel,
		subs:      make(map[*Subscription[P, R]]struct{}),
	}

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	return id, ctx
}

// ErrNotFound is returned by every lookup/mutation method for an unknown id.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "job not found" }

// ErrInvalidTransition is returned when a caller requests a state change the
// job's current status does not allow.
var ErrInvalidTransition = errInvalidTransition{}

type errInvalidTransition struct{}

func (errInvalidTransition) Error() string { return "invalid job state transition" }

// Start transitions a job to running iff it is currently pending.
func (r *Registry[D, P, R]) Start(id string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if j.status != StatusPending {
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	j.status = StatusRunning
	j.startedAt = time.Now()
	frame := Frame[P, R]{JobID: id, Status: j.status, Progress: j.progress, Message: j.message}
	subs := snapshotSubs(j)
	r.mu.Unlock()

	broadcast(subs, frame)
	return nil
}

// UpdateProgress records a non-terminal progress update and broadcasts it.
// It is a no-op on the transition diagram: status remains whatever it was
// (normally running).
func (r *Registry[D, P, R]) UpdateProgress(id string, progress P, message string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if j.status.IsTerminal() {
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	j.progress = progress
	j.message = message
	frame := Frame[P, R]{JobID: id, Status: j.status, Progress: j.progress, Message: j.message}
	subs := snapshotSubs(j)
	r.mu.Unlock()

	broadcast(subs, frame)
	return nil
}

// Complete transitions a job to completed, recording result exactly once,
// then broadcasts the terminal frame and sentinel.
func (r *Registry[D, P, R]) Complete(id string, result R) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if j.status.IsTerminal() {
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	j.status = StatusCompleted
	j.result = result
	j.hasResult = true
	j.completedAt = time.Now()
	frame := Frame[P, R]{JobID: id, Status: j.status, Progress: j.progress, Message: j.message, Result: result, HasResult: true}
	subs := snapshotSubs(j)
	r.mu.Unlock()

	broadcastTerminal(subs, frame)
	return nil
}

// Fail transitions a job to failed with the given error message.
func (r *Registry[D, P, R]) Fail(id string, errMsg string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if j.status.IsTerminal() {
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	j.status = StatusFailed
	j.errMsg = errMsg
	j.completedAt = time.Now()
	frame := Frame[P, R]{JobID: id, Status: j.status, Progress: j.progress, Message: j.message, Error: errMsg}
	subs := snapshotSubs(j)
	r.mu.Unlock()

	broadcastTerminal(subs, frame)
	return nil
}

// Cancel requests cancellation. A pending job is finalized to cancelled
// immediately since no executor owns it yet; a running job is flagged and
// its cancel handle is triggered, and the executor must call
// FinalizeCancelled once the body observes the cancellation and returns.
// Cancelling an already-terminal job is a no-op, making cancellation
// idempotent.
func (r *Registry[D, P, R]) Cancel(id string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if j.status.IsTerminal() {
		r.mu.Unlock()
		return nil
	}

	j.cancelled = true
	j.cancel()

	if j.status == StatusPending {
		j.status = StatusCancelled
		j.completedAt = time.Now()
		frame := Frame[P, R]{JobID: id, Status: j.status, Progress: j.progress, Message: j.message}
		subs := snapshotSubs(j)
		r.mu.Unlock()
		broadcastTerminal(subs, frame)
		return nil
	}

	r.mu.Unlock()
	return nil
}

// FinalizeCancelled is called by the executor once a running job's body has
// observed cancellation and returned. It is a no-op if the job already
// reached a terminal status through another path.
func (r *Registry[D, P, R]) FinalizeCancelled(id string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if j.status.IsTerminal() {
		r.mu.Unlock()
		return nil
	}
	j.status = StatusCancelled
	j.completedAt = time.Now()
	frame := Frame[P, R]{JobID: id, Status: j.status, Progress: j.progress, Message: j.message}
	subs := snapshotSubs(j)
	r.mu.Unlock()

	broadcastTerminal(subs, frame)
	return nil
}

// IsCancelled reports whether cancellation has been requested for id.
func (r *Registry[D, P, R]) IsCancelled(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	return j.cancelled, nil
}

// Get returns a point-in-time snapshot of a job's state.
func (r *Registry[D, P, R]) Get(id string) (Snapshot[D, P, R], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Snapshot[D, P, R]{}, ErrNotFound
	}
	return snapshotOf(j), nil
}

// List returns a snapshot of every job currently in the registry.
func (r *Registry[D, P, R]) List() []Snapshot[D, P, R] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot[D, P, R], 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, snapshotOf(j))
	}
	return out
}

// Subscribe adds a bounded FIFO queue for id's events. The caller is
// responsible for calling Unsubscribe once it stops reading.
func (r *Registry[D, P, R]) Subscribe(id string) (*Subscription[P, R], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	sub := &Subscription[P, R]{jobID: id, ch: make(chan Frame[P, R], r.queueSize)}
	j.subs[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe removes a subscription from its job. Safe to call more than
// once or after the job has been cleaned up.
func (r *Registry[D, P, R]) Unsubscribe(id string, sub *Subscription[P, R]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return
	}
	delete(j.subs, sub)
}

// Cleanup removes every terminal job whose CompletedAt is older than
// olderThan, relative to now. It returns the number of jobs removed.
func (r *Registry[D, P, R]) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, j := range r.jobs {
		if j.status.IsTerminal() && j.completedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

func snapshotOf[D any, P any, R any](j *job[D, P, R]) Snapshot[D, P, R] {
	return Snapshot[D, P, R]{
		ID: j.id, Kind: j.kind, Status: j.status, Data: j.data,
		Progress: j.progress, Message: j.message, Error: j.errMsg,
		Result: j.result, HasResult: j.hasResult, Cancelled: j.cancelled,
		CreatedAt: j.createdAt, StartedAt: j.startedAt, CompletedAt: j.completedAt,
	}
}

func snapshotSubs[D any, P any, R any](j *job[D, P, R]) []*Subscription[P, R] {
	subs := make([]*Subscription[P, R], 0, len(j.subs))
	for s := range j.subs {
		subs = append(subs, s)
	}
	return subs
}

// broadcast pushes frame to every subscriber, dropping the oldest queued
// frame on a full channel to make room rather than blocking.
func broadcast[P any, R any](subs []*Subscription[P, R], frame Frame[P, R]) {
	for _, s := range subs {
		pushNonBlocking(s.ch, frame)
	}
}

// broadcastTerminal pushes frame with Sentinel set, carrying the terminal
// payload and the end-of-stream marker in a single push. A job reaches a
// terminal status at most once, so this is the only guaranteed-delivery
// push ever made to a given subscription: pushNonBlocking may still evict a
// stale progress frame to make room, but there is no second terminal push
// left to collide with it, so the terminal frame itself is never dropped
// regardless of queue size (including a queue of size one).
func broadcastTerminal[P any, R any](subs []*Subscription[P, R], frame Frame[P, R]) {
	frame.Sentinel = true
	for _, s := range subs {
		pushNonBlocking(s.ch, frame)
	}
}

func pushNonBlocking[P any, R any](ch chan Frame[P, R], frame Frame[P, R]) {
	select {
	case ch <- frame:
		return
	default:
	}
	// Full: drop the oldest frame to make room, then retry once.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}
