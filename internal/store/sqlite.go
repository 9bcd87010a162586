// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	mu          sync.RWMutex
	importTimes map[string]time.Time
	retry       utils.RetryConfig
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	retry := utils.DefaultRetryConfig()
	retry.Retryable = isBusy

	store := &SQLiteStore{
		db:          db,
		importTimes: make(map[string]time.Time),
		retry:       retry,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// isBusy reports whether err is a transient lock conflict worth retrying.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per option per quote time. Money columns are decimal TEXT,
	-- quote_time is Unix seconds.
	CREATE TABLE IF NOT EXISTS option_quotes (
		option_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		expiration TEXT NOT NULL,
		strike TEXT NOT NULL,
		option_type TEXT NOT NULL,
		quote_time INTEGER NOT NULL,
		spot TEXT NOT NULL,
		bid TEXT NOT NULL,
		ask TEXT NOT NULL,
		price TEXT NOT NULL,
		delta REAL,
		gamma REAL,
		theta REAL,
		vega REAL,
		rho REAL,
		implied_volatility REAL,
		open_interest INTEGER,
		volume INTEGER,
		PRIMARY KEY (option_id, quote_time)
	);

	-- Backtest run summaries
	CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		initial_cash TEXT NOT NULL,
		final_value TEXT NOT NULL,
		total_return REAL,
		max_drawdown REAL,
		sharpe_ratio REAL,
		win_rate REAL,
		total_trades INTEGER,
		created_at DATETIME NOT NULL
	);

	-- Closed positions of each run
	CREATE TABLE IF NOT EXISTS backtest_trades (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		position_id INTEGER NOT NULL,
		combination TEXT NOT NULL,
		symbol TEXT NOT NULL,
		position_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		open_time DATETIME NOT NULL,
		close_time DATETIME NOT NULL,
		profit_loss TEXT NOT NULL,
		fees TEXT NOT NULL,
		reason TEXT,
		FOREIGN KEY (run_id) REFERENCES backtest_runs(run_id)
	);

	-- Last import per symbol
	CREATE TABLE IF NOT EXISTS import_status (
		symbol TEXT PRIMARY KEY,
		last_import DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_option_quotes_symbol_time ON option_quotes(symbol, quote_time);
	CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol, strategy);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Quote Methods
// ============================================================================

// SaveRecords saves option records, replacing any stored for the same option
// and quote time.
func (s *SQLiteStore) SaveRecords(ctx context.Context, records []models.OptionRecord) error {
	if len(records) == 0 {
		return nil
	}
	return utils.Retry(ctx, s.retry, func() error {
		return s.saveRecords(ctx, records)
	})
}

func (s *SQLiteStore) saveRecords(ctx context.Context, records []models.OptionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_quotes (
			option_id, symbol, expiration, strike, option_type, quote_time, spot, bid, ask, price,
			delta, gamma, theta, vega, rho, implied_volatility, open_interest, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		c, q, g, e := r.Contract, r.Quote, r.Greeks, r.Extended
		_, err := stmt.ExecContext(ctx,
			c.OptionID, c.Symbol, c.Expiration.Format(dateLayout), c.Strike.String(), string(c.Type),
			q.Time.Unix(), q.SpotPrice.String(), q.Bid.String(), q.Ask.String(), q.Price.String(),
			nullFloat(g.Delta), nullFloat(g.Gamma), nullFloat(g.Theta), nullFloat(g.Vega), nullFloat(g.Rho),
			nullFloat(e.ImpliedVolatility), nullInt(e.OpenInterest), nullInt(e.Volume))
		if err != nil {
			return fmt.Errorf("failed to insert quote %s: %w", c.OptionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QuoteTimes returns the distinct quote times for symbol in [from, to]. A zero
// to leaves the range open.
func (s *SQLiteStore) QuoteTimes(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	query := `SELECT DISTINCT quote_time FROM option_quotes WHERE symbol = ? AND quote_time >= ?`
	args := []interface{}{symbol, from.Unix()}
	if !to.IsZero() {
		query += ` AND quote_time <= ?`
		args = append(args, to.Unix())
	}
	query += ` ORDER BY quote_time ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var sec int64
		if err := rows.Scan(&sec); err != nil {
			return nil, fmt.Errorf("failed to scan quote time: %w", err)
		}
		times = append(times, fromUnix(sec))
	}
	return times, rows.Err()
}

const recordColumns = `option_id, symbol, expiration, strike, option_type, quote_time, spot, bid, ask, price,
	delta, gamma, theta, vega, rho, implied_volatility, open_interest, volume`

// Snapshot returns every record for symbol quoted exactly at.
func (s *SQLiteStore) Snapshot(ctx context.Context, symbol string, at time.Time) ([]models.OptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM option_quotes
		WHERE symbol = ? AND quote_time = ?
		ORDER BY expiration, option_type, CAST(strike AS REAL)
	`, symbol, at.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Updates returns the records for one option after after and up to until.
func (s *SQLiteStore) Updates(ctx context.Context, optionID string, after, until time.Time) ([]models.OptionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM option_quotes WHERE option_id = ? AND quote_time > ?`
	args := []interface{}{optionID, after.Unix()}
	if !until.IsZero() {
		query += " AND quote_time <= ?"
		args = append(args, until.Unix())
	}
	query += " ORDER BY quote_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query updates: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Symbols lists the underlyings with stored quotes.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM option_quotes ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]models.OptionRecord, error) {
	var records []models.OptionRecord
	for rows.Next() {
		var (
			r                              models.OptionRecord
			expiration, optionType         string
			quoteTime                      int64
			delta, gamma, theta, vega, rho sql.NullFloat64
			iv                             sql.NullFloat64
			openInterest, volume           sql.NullInt64
		)
		if err := rows.Scan(
			&r.Contract.OptionID, &r.Contract.Symbol, &expiration, &r.Contract.Strike, &optionType,
			&quoteTime, &r.Quote.SpotPrice, &r.Quote.Bid, &r.Quote.Ask, &r.Quote.Price,
			&delta, &gamma, &theta, &vega, &rho, &iv, &openInterest, &volume,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}

		exp, err := time.ParseInLocation(dateLayout, expiration, utils.EasternLocation)
		if err != nil {
			return nil, errors.NewDataError("expiration", r.Contract.Symbol, "unreadable stored expiration "+expiration, err)
		}
		typ, err := models.ParseOptionType(optionType)
		if err != nil {
			return nil, errors.NewDataError("option_type", r.Contract.Symbol, "unreadable stored option type", err)
		}
		r.Contract.Expiration = exp
		r.Contract.Type = typ
		r.Quote.Time = fromUnix(quoteTime)
		r.Greeks = models.Greeks{
			Delta: floatPtr(delta),
			Gamma: floatPtr(gamma),
			Theta: floatPtr(theta),
			Vega:  floatPtr(vega),
			Rho:   floatPtr(rho),
		}
		r.Extended = models.Extended{
			ImpliedVolatility: floatPtr(iv),
			OpenInterest:      intPtr(openInterest),
			Volume:            intPtr(volume),
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quotes: %w", err)
	}
	return records, nil
}

// ============================================================================
// Run Methods
// ============================================================================

// SaveRun saves a run summary and its trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, summary *models.RunSummary, trades []models.Trade) error {
	return utils.Retry(ctx, s.retry, func() error {
		return s.saveRun(ctx, summary, trades)
	})
}

func (s *SQLiteStore) saveRun(ctx context.Context, summary *models.RunSummary, trades []models.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs (run_id, symbol, strategy, start_date, end_date, initial_cash, final_value,
			total_return, max_drawdown, sharpe_ratio, win_rate, total_trades, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, summary.RunID, summary.Symbol, summary.Strategy, summary.StartDate, summary.EndDate,
		summary.InitialCash.String(), summary.FinalValue.String(), summary.TotalReturn, summary.MaxDrawdown,
		summary.SharpeRatio, summary.WinRate, summary.TotalTrades, summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO backtest_trades (id, run_id, position_id, combination, symbol, position_type, quantity,
			open_time, close_time, profit_loss, fees, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx, t.ID, summary.RunID, t.PositionID, t.Combination, t.Symbol, string(t.PositionType),
			t.Quantity, t.OpenTime, t.CloseTime, t.ProfitLoss.String(), t.Fees.String(), t.Reason)
		if err != nil {
			return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRuns retrieves run summaries, newest first.
func (s *SQLiteStore) GetRuns(ctx context.Context, filter RunFilter) ([]models.RunSummary, error) {
	query := `SELECT run_id, symbol, strategy, start_date, end_date, initial_cash, final_value,
		total_return, max_drawdown, sharpe_ratio, win_rate, total_trades, created_at
		FROM backtest_runs WHERE 1=1`
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var r models.RunSummary
		if err := rows.Scan(&r.RunID, &r.Symbol, &r.Strategy, &r.StartDate, &r.EndDate, &r.InitialCash, &r.FinalValue,
			&r.TotalReturn, &r.MaxDrawdown, &r.SharpeRatio, &r.WinRate, &r.TotalTrades, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetTrades retrieves the trades of one run in close order.
func (s *SQLiteStore) GetTrades(ctx context.Context, runID string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, position_id, combination, symbol, position_type, quantity, open_time, close_time,
			profit_loss, fees, reason
		FROM backtest_trades WHERE run_id = ?
		ORDER BY close_time ASC, position_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var positionType string
		var reason sql.NullString
		if err := rows.Scan(&t.ID, &t.RunID, &t.PositionID, &t.Combination, &t.Symbol, &positionType, &t.Quantity,
			&t.OpenTime, &t.CloseTime, &t.ProfitLoss, &t.Fees, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.PositionType = models.PositionType(positionType)
		t.Reason = reason.String
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ============================================================================
// Import Methods
// ============================================================================

// GetLastImport returns the last import time for a symbol.
func (s *SQLiteStore) GetLastImport(symbol string) time.Time {
	s.mu.RLock()
	if t, ok := s.importTimes[symbol]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastImport time.Time
	err := s.db.QueryRow(`
		SELECT last_import FROM import_status WHERE symbol = ?
	`, symbol).Scan(&lastImport)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.importTimes[symbol] = lastImport
	s.mu.Unlock()

	return lastImport
}

// SetLastImport sets the last import time for a symbol.
func (s *SQLiteStore) SetLastImport(symbol string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO import_status (symbol, last_import, updated_at)
		VALUES (?, ?, ?)
	`, symbol, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last import: %w", err)
	}

	s.mu.Lock()
	s.importTimes[symbol] = t
	s.mu.Unlock()

	return nil
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).In(utils.EasternLocation)
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return models.Float(n.Float64)
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
