package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the record of one closed position in a backtest run.
type Trade struct {
	ID           string
	RunID        string
	PositionID   int64
	Combination  string
	Symbol       string
	PositionType PositionType
	Quantity     int
	OpenTime     time.Time
	CloseTime    time.Time
	ProfitLoss   decimal.Decimal
	Fees         decimal.Decimal
	Reason       string
}

// RunSummary is the persisted summary of one backtest run.
type RunSummary struct {
	RunID       string
	Symbol      string
	Strategy    string
	StartDate   time.Time
	EndDate     time.Time
	InitialCash decimal.Decimal
	FinalValue  decimal.Decimal
	TotalReturn float64
	MaxDrawdown float64
	SharpeRatio float64
	WinRate     float64
	TotalTrades int
	CreatedAt   time.Time
}
