// Package jobkinds supplies the concrete type parameters the rest of the
// service instantiates internal/jobs, internal/executor, and internal/sse
// with. Every job kind (sync, dataset-build, backtest, optimization,
// screening, lab) shares one progress shape and one loosely-typed result
// envelope, so a single generic registry/pool/stream instantiation serves
// all of them instead of one per kind.
package jobkinds

import (
	"github.com/jmylchreest/btorch/internal/executor"
	"github.com/jmylchreest/btorch/internal/jobs"
)

// Kind enumerates the job kinds the control plane accepts.
type Kind string

const (
	KindSync         Kind = "sync"
	KindDatasetBuild Kind = "dataset-build"
	KindBacktest     Kind = "backtest"
	KindOptimization Kind = "optimization"
	KindScreening    Kind = "screening"
	KindLab          Kind = "lab"
)

// Data carries the kind-specific request parameters a job was created with,
// kept around so a status snapshot can echo back what was asked for.
type Data struct {
	Kind   Kind           `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// Progress is the monotonically-updated progress record every job kind
// reports through, regardless of what work it's doing underneath: a stage
// name, a step counter, and a human message.
type Progress struct {
	Stage      string  `json:"stage"`
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message,omitempty"`
}

// Result is the kind-specific raw result payload. Its shape varies enough
// across kinds (row counts for a sync, equity curves for a backtest, a
// parameter grid for an optimization) that a loosely-typed map, not a
// struct, is what every kind's job body actually has to produce.
type Result map[string]any

// Registry, Pool, Body, and Report are the concrete instantiations used
// throughout the HTTP layer and cmd/btorchd, so no caller outside this
// package spells out the three type parameters by hand.
type (
	Registry = jobs.Registry[Data, Progress, Result]
	Snapshot = jobs.Snapshot[Data, Progress, Result]
	Frame    = jobs.Frame[Progress, Result]
	Pool     = executor.Pool[Data, Progress, Result]
	Body     = executor.Body[Progress, Result]
	Report   = executor.Report[Progress]
)

// NewRegistry builds the job registry with the given per-subscription queue
// size.
func NewRegistry(queueSize int) *Registry {
	return jobs.NewRegistry[Data, Progress, Result](queueSize)
}
