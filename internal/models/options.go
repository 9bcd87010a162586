package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract is the immutable identity of an option.
type Contract struct {
	OptionID   string
	Symbol     string
	Strike     decimal.Decimal
	Expiration time.Time
	Type       OptionType
}

// Quote is a market snapshot for one option. Price is supplied by the data
// source (mid or last) and is never re-derived from Bid and Ask.
type Quote struct {
	Time      time.Time
	SpotPrice decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Price     decimal.Decimal
}

// Greeks are externally supplied analytics. Nil means not supplied.
type Greeks struct {
	Delta *float64
	Gamma *float64
	Theta *float64
	Vega  *float64
	Rho   *float64
}

// IsZero reports whether no greek was supplied.
func (g Greeks) IsZero() bool {
	return g.Delta == nil && g.Gamma == nil && g.Theta == nil && g.Vega == nil && g.Rho == nil
}

// Extended holds optional data-source fields.
type Extended struct {
	OpenInterest      *int64
	ImpliedVolatility *float64
	Volume            *int64
}

// IsZero reports whether no extended field was supplied.
func (e Extended) IsZero() bool {
	return e.OpenInterest == nil && e.ImpliedVolatility == nil && e.Volume == nil
}

// OptionRecord is one row of an option-chain snapshot or update feed.
type OptionRecord struct {
	Contract Contract
	Quote    Quote
	Greeks   Greeks
	Extended Extended
}
