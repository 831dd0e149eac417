package httpapi

import (
	"context"
	"time"

	"github.com/jmylchreest/btorch/internal/datasets"
)

// ListDatasetsOutput enumerates every dataset file under the router's base
// directory.
type ListDatasetsOutput struct {
	Body struct {
		Datasets []string `json:"datasets"`
	}
}

func (a *api) ListDatasets(ctx context.Context, input *struct{}) (*ListDatasetsOutput, error) {
	names, err := a.deps.Datasets.ListDatasets()
	if err != nil {
		return nil, appErrorToHuma(err)
	}
	out := &ListDatasetsOutput{}
	out.Body.Datasets = names
	return out, nil
}

// DatasetStatsInput identifies a dataset by path parameter.
type DatasetStatsInput struct {
	Name string `path:"name" doc:"Dataset name"`
}

// DatasetStatsOutput wraps a dataset's summary statistics.
type DatasetStatsOutput struct {
	Body datasets.Stats
}

func (a *api) DatasetStats(ctx context.Context, input *DatasetStatsInput) (*DatasetStatsOutput, error) {
	h, err := a.deps.Datasets.Resolve(input.Name)
	if err != nil {
		return nil, appErrorToHuma(err)
	}
	if h == nil {
		return nil, notFoundErr("dataset not found: " + input.Name)
	}
	stats, err := datasets.DatasetStats(input.Name, h.DB())
	if err != nil {
		return nil, appErrorToHuma(err)
	}
	return &DatasetStatsOutput{Body: stats}, nil
}

// DeleteDatasetOutput confirms eviction of a dataset's cached handle.
type DeleteDatasetOutput struct {
	Body struct {
		Name    string `json:"name"`
		Evicted bool   `json:"evicted"`
	}
}

// DeleteDataset evicts the cached read-only handle for a dataset (admin-
// gated by the chi route group it is registered under). It does not delete
// the underlying file: eviction only forces the next Resolve to reopen it,
// which is what operators need after an out-of-band file replacement.
func (a *api) DeleteDataset(ctx context.Context, input *DatasetStatsInput) (*DeleteDatasetOutput, error) {
	if err := a.deps.Datasets.Evict(input.Name); err != nil {
		return nil, appErrorToHuma(err)
	}
	out := &DeleteDatasetOutput{}
	out.Body.Name = input.Name
	out.Body.Evicted = true
	return out, nil
}

// OHLCVInput identifies a dataset/stock pair and an optional date range.
type OHLCVInput struct {
	Name string `path:"name" doc:"Dataset name"`
	Code string `path:"code" doc:"Stock code (canonical or expanded form)"`
	From string `query:"from" doc:"Inclusive start date, YYYY-MM-DD"`
	To   string `query:"to" doc:"Inclusive end date, YYYY-MM-DD"`
}

// BarsOutput wraps an OHLCV bar series.
type BarsOutput struct {
	Body struct {
		Bars []datasets.Bar `json:"bars"`
	}
}

// OHLCV answers the per-dataset OHLCV route, coalescing concurrent requests
// for the same dataset/code/range onto a single read via the single-flight
// cache (C3).
func (a *api) OHLCV(ctx context.Context, input *OHLCVInput) (*BarsOutput, error) {
	h, err := a.deps.Datasets.Resolve(input.Name)
	if err != nil {
		return nil, appErrorToHuma(err)
	}
	if h == nil {
		return nil, notFoundErr("dataset not found: " + input.Name)
	}

	key := input.Name + "|" + input.Code + "|" + input.From + "|" + input.To
	bars, _, err := a.deps.OHLCVCache.GetOrSet(ctx, key, ohlcvTTL, func(ctx context.Context) ([]datasets.Bar, error) {
		return datasets.OHLCV(h.DB(), input.Code, input.From, input.To)
	})
	if err != nil {
		return nil, appErrorToHuma(err)
	}
	out := &BarsOutput{}
	out.Body.Bars = bars
	return out, nil
}

// TopixInput bounds the TOPIX query to an optional date range.
type TopixInput struct {
	From string `query:"from" doc:"Inclusive start date, YYYY-MM-DD"`
	To   string `query:"to" doc:"Inclusive end date, YYYY-MM-DD"`
}

// Topix answers the shared TOPIX index route, cached the same way OHLCV is.
func (a *api) Topix(ctx context.Context, input *TopixInput) (*BarsOutput, error) {
	key := "topix|" + input.From + "|" + input.To
	bars, _, err := a.deps.TopixCache.GetOrSet(ctx, key, ohlcvTTL, func(ctx context.Context) ([]datasets.Bar, error) {
		return datasets.Topix(a.deps.MarketDB, input.From, input.To)
	})
	if err != nil {
		return nil, appErrorToHuma(err)
	}
	out := &BarsOutput{}
	out.Body.Bars = bars
	return out, nil
}

// ohlcvTTL bounds how long a bar series is served from cache before a fresh
// read is forced; trading data for a finished day never changes, so this
// mostly protects against a burst of requests during a running sync job.
const ohlcvTTL = 5 * time.Minute
