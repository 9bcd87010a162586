// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"io"
	"time"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
)

// QuoteSource is the read side of the quote store a backtest replays from.
type QuoteSource interface {
	// QuoteTimes returns the distinct quote times for symbol in [from, to],
	// ascending. A zero to leaves the range open.
	QuoteTimes(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error)
	// Snapshot returns every option record for symbol quoted exactly at.
	Snapshot(ctx context.Context, symbol string, at time.Time) ([]models.OptionRecord, error)
	// Updates returns the records for one option quoted after after and, when
	// until is not zero, no later than until, in time order.
	Updates(ctx context.Context, optionID string, after, until time.Time) ([]models.OptionRecord, error)
}

// ResultStore persists backtest results.
type ResultStore interface {
	SaveRun(ctx context.Context, summary *models.RunSummary, trades []models.Trade) error
	GetRuns(ctx context.Context, filter RunFilter) ([]models.RunSummary, error)
	GetTrades(ctx context.Context, runID string) ([]models.Trade, error)
}

// DataStore defines the interface for data persistence.
type DataStore interface {
	QuoteSource
	ResultStore

	// Quotes
	SaveRecords(ctx context.Context, records []models.OptionRecord) error
	ImportCSV(ctx context.Context, r io.Reader) (int, error)
	Symbols(ctx context.Context) ([]string, error)

	// Import bookkeeping
	GetLastImport(symbol string) time.Time
	SetLastImport(symbol string, t time.Time) error

	// Lifecycle
	Close() error
}

// RunFilter represents filters for querying backtest runs.
type RunFilter struct {
	Symbol   string
	Strategy string
	Limit    int
}
