package option

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Config holds the per-run switches consumed by every option.
type Config struct {
	FeesEnabled     bool
	FeePerContract  decimal.Decimal
	SlippageOnEntry bool
	SlippageOnExit  bool
	// Slippage is added to a long's fill and subtracted from a short's on exit,
	// and the reverse on entry. A negative amount models a fill worse than the quote.
	Slippage    decimal.Decimal
	MarketClose utils.MarketClose
}

// DefaultConfig returns a configuration with fees and slippage disabled and a 16:15 cutoff.
func DefaultConfig() Config {
	return Config{
		FeePerContract: decimal.RequireFromString("0.50"),
		MarketClose:    utils.DefaultMarketClose,
	}
}

func (c Config) marketClose() utils.MarketClose {
	if c.MarketClose.IsZero() {
		return utils.DefaultMarketClose
	}
	return c.MarketClose
}
