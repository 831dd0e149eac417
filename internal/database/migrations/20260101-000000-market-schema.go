package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260101-000000",
		Description: "Market data schema (stocks, OHLCV, TOPIX, indices, margin, statements)",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS stocks (
				code TEXT PRIMARY KEY,
				name TEXT,
				market TEXT,
				sector TEXT,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stocks_market ON stocks(market)`,

			// OHLCV bars, keyed by the four-character canonical stock code.
			`CREATE TABLE IF NOT EXISTS stock_data (
				code TEXT NOT NULL,
				date TEXT NOT NULL,
				open REAL,
				high REAL,
				low REAL,
				close REAL,
				volume INTEGER,
				adjustment_factor REAL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (code, date)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stock_data_date ON stock_data(date)`,

			`CREATE TABLE IF NOT EXISTS topix_data (
				date TEXT PRIMARY KEY,
				open REAL,
				high REAL,
				low REAL,
				close REAL,
				created_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS indices_data (
				code TEXT NOT NULL,
				date TEXT NOT NULL,
				open REAL,
				high REAL,
				low REAL,
				close REAL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (code, date)
			)`,

			`CREATE TABLE IF NOT EXISTS margin_data (
				code TEXT NOT NULL,
				date TEXT NOT NULL,
				long_margin REAL,
				short_margin REAL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (code, date)
			)`,

			`CREATE TABLE IF NOT EXISTS statements (
				code TEXT NOT NULL,
				disclosed_date TEXT NOT NULL,
				fiscal_year TEXT,
				net_sales REAL,
				operating_profit REAL,
				net_income REAL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (code, disclosed_date)
			)`,

			// Free-form key/value metadata for a dataset file: last sync time,
			// source plan, row counts snapshot, etc.
			`CREATE TABLE IF NOT EXISTS dataset_info (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	})
}
