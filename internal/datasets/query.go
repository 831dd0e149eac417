package datasets

import (
	"database/sql"
	"fmt"

	"github.com/jmylchreest/btorch/internal/apperr"
	"github.com/jmylchreest/btorch/internal/ingestion"
)

// Bar is one OHLCV row as stored by the ingestion pipeline's quote-row
// builder.
type Bar struct {
	Date             string   `json:"date"`
	Open             float64  `json:"open"`
	High             float64  `json:"high"`
	Low              float64  `json:"low"`
	Close            float64  `json:"close"`
	Volume           int64    `json:"volume"`
	AdjustmentFactor *float64 `json:"adjustment_factor,omitempty"`
}

// OHLCV returns code's bars from db's stock_data table between from and to
// (inclusive, "" meaning unbounded on that side), trying both the
// canonical and expanded forms of code since either may be what a given
// dataset stored. Returns apperr.NotFound if neither form has any rows.
func OHLCV(db *sql.DB, code, from, to string) ([]Bar, error) {
	var bars []Bar
	var lastErr error

	for _, variant := range ingestion.QueryVariants(code) {
		rows, err := queryOHLCV(db, variant, from, to)
		if err != nil {
			lastErr = err
			continue
		}
		if len(rows) > 0 {
			return rows, nil
		}
		bars = rows
	}

	if lastErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("query ohlcv for %s", code), lastErr)
	}
	if bars == nil {
		return nil, apperr.NotFound(fmt.Sprintf("no OHLCV data for stock %s", code))
	}
	return bars, nil
}

func queryOHLCV(db *sql.DB, code, from, to string) ([]Bar, error) {
	query := `SELECT date, open, high, low, close, volume, adjustment_factor
		FROM stock_data WHERE code = ?`
	args := []any{code}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bar
	for rows.Next() {
		var b Bar
		var adj sql.NullFloat64
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &adj); err != nil {
			return nil, err
		}
		if adj.Valid {
			v := adj.Float64
			b.AdjustmentFactor = &v
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Topix returns the shared TOPIX index bars from db's topix_data table
// between from and to (inclusive, "" meaning unbounded).
func Topix(db *sql.DB, from, to string) ([]Bar, error) {
	query := `SELECT date, open, high, low, close, 0, NULL FROM topix_data WHERE 1=1`
	args := []any{}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, apperr.Internal("query topix", err)
	}
	defer rows.Close()

	var out []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, new(sql.NullFloat64)); err != nil {
			return nil, apperr.Internal("scan topix row", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate topix rows", err)
	}
	if out == nil {
		return nil, apperr.NotFound("no TOPIX data available")
	}
	return out, nil
}

// Stats summarizes one dataset file for the listing/stats endpoint.
type Stats struct {
	Name       string `json:"name"`
	StockCount int    `json:"stock_count"`
	RowCount   int    `json:"row_count"`
	MinDate    string `json:"min_date,omitempty"`
	MaxDate    string `json:"max_date,omitempty"`
}

// DatasetStats computes summary statistics for one resolved dataset handle.
func DatasetStats(name string, db *sql.DB) (Stats, error) {
	stats := Stats{Name: name}
	row := db.QueryRow(`SELECT COUNT(DISTINCT code), COUNT(*), MIN(date), MAX(date) FROM stock_data`)
	var minDate, maxDate sql.NullString
	if err := row.Scan(&stats.StockCount, &stats.RowCount, &minDate, &maxDate); err != nil {
		return Stats{}, apperr.Internal(fmt.Sprintf("compute stats for dataset %s", name), err)
	}
	stats.MinDate = minDate.String
	stats.MaxDate = maxDate.String
	return stats, nil
}
