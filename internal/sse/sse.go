// Package sse translates job registry events into the Server-Sent Events
// wire protocol consumed by job-status streaming clients.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmylchreest/btorch/internal/jobs"
)

// HeartbeatInterval is how long the stream waits for a frame before emitting
// a keepalive, to stop intermediaries from closing an idle connection.
const HeartbeatInterval = 30 * time.Second

// SetHeaders sets the response headers an SSE stream requires and disables
// the write deadline, since job streams can run far longer than an ordinary
// HTTP response. The caller must still ensure w supports http.Flusher.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
}

// Stream writes job_id's lifecycle to w as Server-Sent Events until the job
// reaches a terminal status, the caller's context is cancelled, or the job
// is unknown. It never returns an error for a normal, complete stream: ctx
// cancellation is the only error return, and is expected on client
// disconnect.
func Stream[D any, P any, R any](ctx context.Context, w http.ResponseWriter, flusher http.Flusher, registry *jobs.Registry[D, P, R], jobID string) error {
	snap, err := registry.Get(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeFrame(w, flusher, "error", map[string]any{"message": "job not found"})
			return nil
		}
		writeFrame(w, flusher, "error", map[string]any{"message": err.Error()})
		return nil
	}

	if snap.Status.IsTerminal() {
		writeFrame(w, flusher, string(snap.Status), snapshotPayload(snap))
		return nil
	}

	sub, err := registry.Subscribe(jobID)
	if err != nil {
		// The job completed and was cleaned up between Get and Subscribe.
		writeFrame(w, flusher, "error", map[string]any{"message": "job not found"})
		return nil
	}
	defer registry.Unsubscribe(jobID, sub)

	timer := time.NewTimer(HeartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-sub.Events():
			if !ok {
				return nil
			}
			writeFrame(w, flusher, string(frame.Status), framePayload(frame))
			if frame.Sentinel {
				return nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(HeartbeatInterval)
		case <-timer.C:
			writeFrame(w, flusher, "heartbeat", map[string]any{})
			timer.Reset(HeartbeatInterval)
		}
	}
}

func framePayload[P any, R any](f jobs.Frame[P, R]) map[string]any {
	m := map[string]any{
		"id":       f.JobID,
		"status":   string(f.Status),
		"progress": f.Progress,
		"message":  f.Message,
	}
	if f.Error != "" {
		m["error"] = f.Error
	}
	if f.HasResult {
		m["data"] = f.Result
	}
	return m
}

func snapshotPayload[D any, P any, R any](s jobs.Snapshot[D, P, R]) map[string]any {
	m := map[string]any{
		"id":       s.ID,
		"status":   string(s.Status),
		"progress": s.Progress,
		"message":  s.Message,
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	if s.HasResult {
		m["data"] = s.Result
	}
	return m
}

// writeFrame writes one "event: <event>\ndata: <json>\n\n" frame and flushes.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
