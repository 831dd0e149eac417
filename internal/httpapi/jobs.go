package httpapi

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/btorch/internal/datasets"
	"github.com/jmylchreest/btorch/internal/ingestion"
	"github.com/jmylchreest/btorch/internal/jobkinds"
	"github.com/jmylchreest/btorch/internal/sse"
)

var validate = validator.New()

// StrategyJobInput is the shared request body for job kinds whose
// computation is an external collaborator (backtest, optimization,
// screening): a free-form parameter bag the strategy engine would consume.
// Preset and Markets are only meaningful for screening jobs; other kinds
// ignore them.
type StrategyJobInput struct {
	Body struct {
		Dataset string         `json:"dataset" validate:"required" minLength:"1" doc:"Dataset name to run against"`
		Preset  string         `json:"preset,omitempty" doc:"Named market-code preset (screening jobs only), see GET /api/presets"`
		Markets string         `json:"markets,omitempty" doc:"Comma-separated market codes/segments (screening jobs only); overridden by preset when both are set"`
		Params  map[string]any `json:"params,omitempty" doc:"Kind-specific parameters"`
	}
}

// JobCreatedOutput is returned (202 Accepted) by every job-creation route.
type JobCreatedOutput struct {
	Status int
	Body   struct {
		JobID  string `json:"job_id" doc:"Opaque job identifier"`
		Status string `json:"status" example:"pending" doc:"Initial job status"`
	}
}

func (a *api) createStrategyJob(kind jobkinds.Kind) func(ctx context.Context, input *StrategyJobInput) (*JobCreatedOutput, error) {
	return func(ctx context.Context, input *StrategyJobInput) (*JobCreatedOutput, error) {
		if err := validate.Struct(input.Body); err != nil {
			return nil, validationError(err)
		}
		params := input.Body.Params
		if params == nil {
			params = map[string]any{}
		}
		params["dataset"] = input.Body.Dataset

		if kind == jobkinds.KindScreening {
			markets := input.Body.Markets
			if input.Body.Preset != "" {
				preset, ok := datasets.ResolvePreset(input.Body.Preset)
				if !ok {
					return nil, notFoundErr("unknown preset: " + input.Body.Preset)
				}
				markets = strings.Join(preset.MarketCodes, ",")
			}
			requested, expanded := ingestion.ResolveMarketCodes(markets, nil)
			params["requested_market_codes"] = requested
			params["market_codes"] = expanded
		}

		id, jobCtx := a.deps.Registry.Create(string(kind), jobkinds.Data{Kind: kind, Params: params})
		body := a.deps.Runtime.StrategyBody(kind, params)
		a.deps.Pool.Submit(jobCtx, id, 0, body)

		out := &JobCreatedOutput{Status: http.StatusAccepted}
		out.Body.JobID = id
		out.Body.Status = "pending"
		return out, nil
	}
}

// ListPresetsOutput wraps every named market-code preset a screening job can
// select by name instead of enumerating codes by hand.
type ListPresetsOutput struct {
	Body struct {
		Presets []datasets.Preset `json:"presets"`
	}
}

func (a *api) ListPresets(ctx context.Context, input *struct{}) (*ListPresetsOutput, error) {
	out := &ListPresetsOutput{}
	out.Body.Presets = datasets.ListPresets()
	return out, nil
}

// SyncJobInput creates a "sync" job that pulls one day's quotes into the
// shared market.db read plane.
type SyncJobInput struct {
	Body struct {
		Date string `json:"date" validate:"required" minLength:"10" maxLength:"10" example:"2024-01-04" doc:"Trading date to sync, YYYY-MM-DD"`
	}
}

func (a *api) CreateSyncJob(ctx context.Context, input *SyncJobInput) (*JobCreatedOutput, error) {
	if err := validate.Struct(input.Body); err != nil {
		return nil, validationError(err)
	}
	params := map[string]any{"date": input.Body.Date}
	id, jobCtx := a.deps.Registry.Create(string(jobkinds.KindSync), jobkinds.Data{Kind: jobkinds.KindSync, Params: params})
	a.deps.Pool.Submit(jobCtx, id, a.deps.Config.SyncJobTimeout, a.deps.Runtime.SyncBody(input.Body.Date))

	out := &JobCreatedOutput{Status: http.StatusAccepted}
	out.Body.JobID = id
	out.Body.Status = "pending"
	return out, nil
}

// DatasetBuildJobInput creates a "dataset-build" job that (re)populates one
// dataset's own SQLite file for a range of trading dates.
type DatasetBuildJobInput struct {
	Name string `path:"name" doc:"Dataset name"`
	Body struct {
		Dates []string `json:"dates" validate:"required,min=1" minItems:"1" doc:"Trading dates to fetch, YYYY-MM-DD each"`
	}
}

func (a *api) CreateDatasetBuildJob(ctx context.Context, input *DatasetBuildJobInput) (*JobCreatedOutput, error) {
	if err := validate.Struct(input.Body); err != nil {
		return nil, validationError(err)
	}
	params := map[string]any{"dataset": input.Name, "dates": input.Body.Dates}
	id, jobCtx := a.deps.Registry.Create(string(jobkinds.KindDatasetBuild), jobkinds.Data{Kind: jobkinds.KindDatasetBuild, Params: params})
	a.deps.Pool.Submit(jobCtx, id, 0, a.deps.Runtime.DatasetBuildBody(input.Name, input.Body.Dates))

	out := &JobCreatedOutput{Status: http.StatusAccepted}
	out.Body.JobID = id
	out.Body.Status = "pending"
	return out, nil
}

// GetJobInput identifies a job by path parameter.
type GetJobInput struct {
	ID string `path:"id" doc:"Job id"`
}

// JobSnapshot is the wire representation of a job's current state.
type JobSnapshot struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Progress    jobkinds.Progress `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      jobkinds.Result `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// GetJobOutput wraps a single job snapshot.
type GetJobOutput struct {
	Body JobSnapshot
}

func (a *api) GetJob(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	snap, err := a.deps.Registry.Get(input.ID)
	if err != nil {
		return nil, notFoundErr("job not found")
	}
	return &GetJobOutput{Body: snapshotToWire(snap)}, nil
}

// ListJobsOutput wraps every job currently tracked by the registry, newest
// first (descending ULID order).
type ListJobsOutput struct {
	Body struct {
		Jobs []JobSnapshot `json:"jobs"`
	}
}

func (a *api) ListJobs(ctx context.Context, input *struct{}) (*ListJobsOutput, error) {
	snaps := a.deps.Registry.List()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID > snaps[j].ID })
	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobSnapshot, 0, len(snaps))
	for _, s := range snaps {
		out.Body.Jobs = append(out.Body.Jobs, snapshotToWire(s))
	}
	return out, nil
}

// CancelJobOutput confirms a cancellation request was accepted.
type CancelJobOutput struct {
	Body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
}

func (a *api) CancelJob(ctx context.Context, input *GetJobInput) (*CancelJobOutput, error) {
	if err := a.deps.Registry.Cancel(input.ID); err != nil {
		return nil, notFoundErr("job not found")
	}
	snap, err := a.deps.Registry.Get(input.ID)
	if err != nil {
		return nil, notFoundErr("job not found")
	}
	out := &CancelJobOutput{}
	out.Body.ID = snap.ID
	out.Body.Status = string(snap.Status)
	return out, nil
}

// streamJobEvents is a raw (non-huma) handler: SSE requires direct control
// over the ResponseWriter that huma's typed-output model does not give.
func (a *api) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}
	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	_ = sse.Stream(r.Context(), w, flusher, a.deps.Registry, jobID)
}

func snapshotToWire(s jobkinds.Snapshot) JobSnapshot {
	out := JobSnapshot{
		ID:       s.ID,
		Kind:     s.Kind,
		Status:   string(s.Status),
		Progress: s.Progress,
		Message:  s.Message,
		Error:    s.Error,
	}
	if s.HasResult {
		out.Result = s.Result
	}
	out.CreatedAt = s.CreatedAt
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		out.StartedAt = &t
	}
	if !s.CompletedAt.IsZero() {
		t := s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
