// Package jobruntime supplies the executor.Body implementations for every
// job kind, wiring the ingestion pipeline, the dataset router, and the
// rate-limited upstream fetcher into the shapes internal/httpapi hands to
// the executor pool. The indicator mathematics behind backtest,
// optimization, screening, and lab runs are an external collaborator
// (out of scope here, per the strategy-engine contract); those bodies
// report a normal job lifecycle around a stub result so the control plane
// around them is fully exercised without reimplementing that engine.
package jobruntime

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/btorch/internal/database"
	"github.com/jmylchreest/btorch/internal/datasets"
	"github.com/jmylchreest/btorch/internal/ingestion"
	"github.com/jmylchreest/btorch/internal/jobkinds"
	"github.com/jmylchreest/btorch/internal/upstream"
)

// Deps bundles the collaborators job bodies need. It is built once in
// cmd/btorchd and shared by every job kind's body.
type Deps struct {
	MarketDB *sql.DB
	Datasets *datasets.Router
	Fetcher  *upstream.Client
	Logger   *slog.Logger
}

// SyncBody fetches one day's quotes from upstream and publishes them into
// the shared market.db read plane.
func (d *Deps) SyncBody(date string) jobkinds.Body {
	return func(ctx context.Context, report jobkinds.Report) (jobkinds.Result, error) {
		result, err := ingestion.RunBatch(ctx,
			func(ctx context.Context) ([]ingestion.Row, error) {
				report(jobkinds.Progress{Stage: "fetch", Current: 0, Total: 4, Percentage: 0, Message: "fetching " + date}, "")
				return d.Fetcher.FetchDailyQuotes(ctx, date)
			},
			buildQuoteRows,
			func(rows []ingestion.Row) []ingestion.Row {
				report(jobkinds.Progress{Stage: "validate", Current: 2, Total: 4, Percentage: 50}, "")
				return ingestion.ValidateRequiredFields(rows, []string{"code", "date"}, []string{"code", "date"}, "sync", d.Logger)
			},
			func(ctx context.Context, rows []ingestion.Row) (int, error) {
				report(jobkinds.Progress{Stage: "publish", Current: 3, Total: 4, Percentage: 75}, "")
				return publishQuotes(ctx, d.MarketDB, rows)
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
		report(jobkinds.Progress{Stage: "done", Current: 4, Total: 4, Percentage: 100}, "")
		return jobkinds.Result{
			"fetched":   result.FetchedCount,
			"validated": result.ValidatedCount,
			"published": result.PublishedCount,
		}, nil
	}
}

// DatasetBuildBody fetches quotes for each date in dates and publishes them
// into name's own SQLite file, opening a dedicated read-write handle (the
// dataset router's cached handles are read-only) and evicting the router's
// cache afterward so the next Resolve picks up the fresh file.
func (d *Deps) DatasetBuildBody(name string, dates []string) jobkinds.Body {
	return func(ctx context.Context, report jobkinds.Report) (jobkinds.Result, error) {
		dbPath, err := d.Datasets.GetDBPath(name)
		if err != nil {
			return nil, err
		}

		writer, err := database.New("file:" + dbPath)
		if err != nil {
			return nil, err
		}
		defer writer.Close()

		published := 0
		total := len(dates)
		for i, date := range dates {
			report(jobkinds.Progress{
				Stage: "fetch", Current: i, Total: total,
				Percentage: float64(i) / float64(max(total, 1)) * 100,
				Message:    date,
			}, "")

			result, err := ingestion.RunBatch(ctx,
				func(ctx context.Context) ([]ingestion.Row, error) { return d.Fetcher.FetchDailyQuotes(ctx, date) },
				buildQuoteRows,
				func(rows []ingestion.Row) []ingestion.Row {
					return ingestion.ValidateRequiredFields(rows, []string{"code", "date"}, []string{"code", "date"}, "dataset-build", d.Logger)
				},
				func(ctx context.Context, rows []ingestion.Row) (int, error) { return publishQuotes(ctx, writer, rows) },
				nil,
			)
			if err != nil {
				return nil, err
			}
			published += result.PublishedCount
		}

		if err := d.Datasets.Evict(name); err != nil {
			d.Logger.Warn("evict dataset cache after build failed", "dataset", name, "error", err)
		}

		report(jobkinds.Progress{Stage: "done", Current: total, Total: total, Percentage: 100}, "")
		return jobkinds.Result{"dataset": name, "published": published, "days": total}, nil
	}
}

// StrategyBody builds a stub body for the kinds whose actual computation
// (indicator evaluation, optimization search, screening rule matching) is
// an external collaborator out of scope here. It still exercises the full
// job lifecycle: staged progress reports, cancellation checks between
// stages, and a kind-tagged result envelope a real engine would fill in.
func (d *Deps) StrategyBody(kind jobkinds.Kind, params map[string]any) jobkinds.Body {
	stages := []string{"load-data", "evaluate", "summarize"}
	return func(ctx context.Context, report jobkinds.Report) (jobkinds.Result, error) {
		for i, stage := range stages {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			report(jobkinds.Progress{
				Stage: stage, Current: i + 1, Total: len(stages),
				Percentage: float64(i+1) / float64(len(stages)) * 100,
			}, "")
		}
		return jobkinds.Result{
			"kind":   string(kind),
			"params": params,
			"note":   "strategy evaluation engine is an external collaborator; this result is a lifecycle stub",
		}, nil
	}
}

// buildQuoteRows maps raw upstream rows to the storage schema, dropping any
// row the quote-row builder rejects as incomplete.
func buildQuoteRows(rows []ingestion.Row) []ingestion.Row {
	out := make([]ingestion.Row, 0, len(rows))
	for _, raw := range rows {
		row, ok := ingestion.BuildQuoteRow(raw, time.Now)
		if ok {
			out = append(out, row)
		}
	}
	return out
}

func publishQuotes(ctx context.Context, db *sql.DB, rows []ingestion.Row) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin publish transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stock_data
		(code, date, open, high, low, close, volume, adjustment_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code, date) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
			volume=excluded.volume, adjustment_factor=excluded.adjustment_factor, created_at=excluded.created_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare publish statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row["code"], row["date"], row["open"], row["high"], row["low"],
			row["close"], row["volume"], row["adjustment_factor"], row["created_at"]); err != nil {
			return 0, fmt.Errorf("publish row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit publish transaction: %w", err)
	}
	return len(rows), nil
}
