package option

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeOpenInfo is created once, when the trade opens.
type TradeOpenInfo struct {
	Date      time.Time
	Quantity  int
	Price     decimal.Decimal
	Premium   decimal.Decimal
	Fees      decimal.Decimal
	SpotPrice decimal.Decimal
}

// TradeCloseInfo records one close transaction, or the quantity-weighted
// aggregate of all of them. Quantity is signed opposite to the open quantity.
type TradeCloseInfo struct {
	Date              time.Time
	Quantity          int
	Price             decimal.Decimal
	Premium           decimal.Decimal
	Fees              decimal.Decimal
	ProfitLoss        decimal.Decimal
	ProfitLossPercent decimal.Decimal
	SpotPrice         decimal.Decimal
}

// OpenedEvent is emitted when a trade opens.
type OpenedEvent struct {
	Option *Option
	Info   TradeOpenInfo
}

// ClosedEvent is emitted for every close transaction.
type ClosedEvent struct {
	Option *Option
	Info   TradeCloseInfo
}

// ExpiredEvent is emitted once, when the option passes its expiration cutoff.
type ExpiredEvent struct {
	Option *Option
	Time   time.Time
}

// FeesEvent carries the fee charged by one transaction, not the running total.
type FeesEvent struct {
	Option *Option
	Amount decimal.Decimal
}
