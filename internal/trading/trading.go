// Package trading replays stored option quotes through a portfolio and a
// strategy, and measures the result.
package trading

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/chain"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/combo"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/portfolio"
)

// Strategy decides which positions to open and close at each quote time.
type Strategy interface {
	Name() string
	OnStep(step *Step) error
}

// Broker executes a strategy's decisions against the portfolio.
type Broker interface {
	// Open opens quantity units of c and attaches the update feed of its legs.
	Open(c combo.Combination, quantity int) error
	// Close fully closes an open position.
	Close(id int64, reason ExitReason) error
}

// Step is what a strategy sees at one quote time.
type Step struct {
	Time      time.Time
	Chain     *chain.Chain
	Portfolio *portfolio.Portfolio
	Broker    Broker
	// CanOpen is false for the rest of a day on which a position was refused
	// for lack of margin.
	CanOpen bool
	Logger  zerolog.Logger
}

// ExitReason represents the reason a position was closed.
type ExitReason string

const (
	ExitReasonTarget     ExitReason = "target"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTimeLimit  ExitReason = "time_limit"
	ExitReasonExpired    ExitReason = "expired"
	ExitReasonEndOfRun   ExitReason = "end_of_backtest"
	ExitReasonDiscretion ExitReason = "discretion"
)

// RunConfig represents one backtest run.
type RunConfig struct {
	Symbol      string
	From        time.Time // zero means the first stored quote
	To          time.Time // zero means the last stored quote
	InitialCash decimal.Decimal
	Quantity    int
}

// Result represents backtesting results. Returns, drawdown and win rate are
// percentages.
type Result struct {
	RunID         string
	Strategy      string
	Symbol        string
	Start         time.Time
	End           time.Time
	Steps         int
	InitialCash   decimal.Decimal
	FinalValue    decimal.Decimal
	TotalReturn   float64
	MaxDrawdown   float64
	SharpeRatio   float64
	WinRate       float64
	ProfitFactor  float64
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	ClampedTrades int
	AvgWin        decimal.Decimal
	AvgLoss       decimal.Decimal
	EquityCurve   []EquityPoint
	Trades        []models.Trade
}

// EquityPoint represents a point on the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// Summary converts the result into its persisted form.
func (r *Result) Summary(createdAt time.Time) *models.RunSummary {
	return &models.RunSummary{
		RunID:       r.RunID,
		Symbol:      r.Symbol,
		Strategy:    r.Strategy,
		StartDate:   r.Start,
		EndDate:     r.End,
		InitialCash: r.InitialCash,
		FinalValue:  r.FinalValue,
		TotalReturn: r.TotalReturn,
		MaxDrawdown: r.MaxDrawdown,
		SharpeRatio: r.SharpeRatio,
		WinRate:     r.WinRate,
		TotalTrades: r.TotalTrades,
		CreatedAt:   createdAt,
	}
}
