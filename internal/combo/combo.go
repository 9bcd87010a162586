// Package combo composes options into multi-leg positions (spreads) with
// construction-time structural validation and position-level risk metrics.
package combo

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
)

// Type tags the shape of a combination.
type Type string

const (
	TypeSingle     Type = "SINGLE"
	TypeVertical   Type = "VERTICAL"
	TypeStraddle   Type = "STRADDLE"
	TypeStrangle   Type = "STRANGLE"
	TypeIronCondor Type = "IRON_CONDOR"
	TypeButterfly  Type = "BUTTERFLY"
	TypeCondor     Type = "CONDOR"
	TypeCalendar   Type = "CALENDAR"
	TypeDiagonal   Type = "DIAGONAL"
	TypeCollar     Type = "COLLAR"
	TypeRatio      Type = "RATIO"
)

// Leg is one option in a combination with its signed contract quantity.
type Leg struct {
	Option   *option.Option
	Quantity int
}

// Combination is a position made of one or more option legs.
type Combination interface {
	ID() int64
	Type() Type
	Symbol() string
	Legs() []Leg
	Options() []*option.Option
	Quantity() int
	RemainingQuantity() int
	PositionType() models.PositionType

	Open(quantity int, bag models.UserDefined) error
	Close(quantity *int, bag models.UserDefined) error

	MaxProfit() decimal.NullDecimal
	MaxLoss() decimal.NullDecimal
	MaxProfitFor(quantity int) decimal.NullDecimal
	MaxLossFor(quantity int) decimal.NullDecimal
	RequiredMargin() decimal.Decimal
	MarginFor(quantity int) decimal.Decimal
	Breakevens() []decimal.Decimal

	Status() option.Status
	IsOpen() bool
	Price() decimal.Decimal
	TradePrice() (decimal.Decimal, error)
	DTE() int

	CurrentValue() decimal.Decimal
	TradeValue() decimal.Decimal
	ClosedValue() decimal.NullDecimal
	ProfitLoss() (decimal.Decimal, error)
	UnrealizedProfitLoss() (decimal.Decimal, error)
	Fees() decimal.Decimal
	OpenTime() (time.Time, bool)
	CloseTime() (time.Time, bool)
	UserDefined() models.UserDefined
	SetUserDefined(key string, v models.Value)

	String() string
}

// riskModel supplies the variant-specific metrics for q units.
type riskModel interface {
	maxProfit(q int) decimal.NullDecimal
	maxLoss(q int) decimal.NullDecimal
	margin(q int) decimal.Decimal
}

var positionSeq atomic.Int64

// NextPositionID returns a process-unique, increasing position id.
func NextPositionID() int64 {
	return positionSeq.Add(1)
}

type leg struct {
	opt   *option.Option
	ratio int
}

// Opt configures optional construction fields shared by every variant.
type Opt func(*base)

// WithUserDefined attaches position annotations at construction. Later
// Open, Close and SetUserDefined calls merge over them.
func WithUserDefined(u models.UserDefined) Opt {
	return func(b *base) { b.userDefined = b.userDefined.Merge(u) }
}

// base carries the behaviour shared by every variant.
type base struct {
	id           int64
	typ          Type
	legs         []leg
	quantity     int
	positionType models.PositionType
	opened       bool
	userDefined  models.UserDefined
	risk         riskModel
}

func newBase(typ Type, legs []Leg, opts ...Opt) (*base, error) {
	if len(legs) == 0 {
		return nil, errors.NewCombinationError(string(typ), "no legs")
	}

	seen := make(map[*option.Option]bool, len(legs))
	unit := 0
	for i, l := range legs {
		if l.Option == nil {
			return nil, errors.NewCombinationError(string(typ), fmt.Sprintf("leg %d has no option", i))
		}
		if l.Quantity == 0 {
			return nil, errors.NewCombinationError(string(typ), fmt.Sprintf("leg %d has zero quantity", i))
		}
		if seen[l.Option] {
			return nil, errors.NewCombinationError(string(typ), fmt.Sprintf("option %s used twice", l.Option.ID()))
		}
		seen[l.Option] = true
		if l.Option.Symbol() != legs[0].Option.Symbol() {
			return nil, errors.NewCombinationError(string(typ), "legs have different symbols")
		}
		if _, traded := l.Option.OpenInfo(); traded {
			return nil, errors.NewCombinationError(string(typ), fmt.Sprintf("option %s is already traded", l.Option.ID()))
		}
		unit = gcd(unit, abs(l.Quantity))
	}

	b := &base{
		id:       NextPositionID(),
		typ:      typ,
		quantity: unit,
	}
	for _, l := range legs {
		b.legs = append(b.legs, leg{opt: l.Option, ratio: l.Quantity / unit})
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// ID returns the position identifier.
func (b *base) ID() int64 { return b.id }

// Type returns the combination shape.
func (b *base) Type() Type { return b.typ }

// Symbol returns the underlying shared by every leg.
func (b *base) Symbol() string { return b.legs[0].opt.Symbol() }

// Quantity returns the number of units opened, or the constructed size before opening.
func (b *base) Quantity() int { return b.quantity }

// PositionType returns LONG or SHORT for the combination as a whole.
func (b *base) PositionType() models.PositionType { return b.positionType }

// Legs returns each option with its signed contract quantity at the current size.
func (b *base) Legs() []Leg {
	out := make([]Leg, len(b.legs))
	for i, l := range b.legs {
		out[i] = Leg{Option: l.opt, Quantity: l.ratio * b.quantity}
	}
	return out
}

// Options returns the leg options in construction order.
func (b *base) Options() []*option.Option {
	out := make([]*option.Option, len(b.legs))
	for i, l := range b.legs {
		out[i] = l.opt
	}
	return out
}

// RemainingQuantity returns how many units are still open.
func (b *base) RemainingQuantity() int {
	if !b.opened {
		return 0
	}
	l := b.legs[0]
	return abs(l.opt.Quantity()) / abs(l.ratio)
}

// Open opens quantity units: every leg opens ratio × quantity contracts.
// Legs are checked before any of them opens.
func (b *base) Open(quantity int, bag models.UserDefined) error {
	if b.opened {
		return errors.Wrapf(errors.ErrTradeAlreadyOpen, "%s position %d", b.typ, b.id)
	}
	if quantity <= 0 {
		return errors.Wrapf(errors.ErrInvalidQuantity, "%s position %d: open quantity %d", b.typ, b.id, quantity)
	}
	for _, l := range b.legs {
		if _, traded := l.opt.OpenInfo(); traded {
			return errors.NewOptionError(l.opt.ID(), "open", fmt.Sprintf("leg of %s position %d", b.typ, b.id), errors.ErrTradeAlreadyOpen)
		}
		if l.opt.IsExpired() {
			return errors.NewOptionError(l.opt.ID(), "open", fmt.Sprintf("leg of %s position %d", b.typ, b.id), errors.ErrOptionExpired)
		}
	}

	b.quantity = quantity
	b.opened = true
	for _, l := range b.legs {
		if _, err := l.opt.Open(l.ratio*quantity, bag); err != nil {
			return errors.Wrapf(err, "%s position %d", b.typ, b.id)
		}
	}
	b.userDefined = b.userDefined.Merge(bag)
	return nil
}

// Close closes quantity units, or everything remaining when quantity is nil.
func (b *base) Close(quantity *int, bag models.UserDefined) error {
	remaining := b.RemainingQuantity()
	if remaining == 0 {
		return errors.Wrapf(errors.ErrNoTradeOpen, "%s position %d", b.typ, b.id)
	}
	n := remaining
	if quantity != nil {
		n = *quantity
	}
	if n <= 0 || n > remaining {
		return errors.Wrapf(errors.ErrInvalidQuantity, "%s position %d: close %d of %d", b.typ, b.id, n, remaining)
	}
	for _, l := range b.legs {
		if !l.opt.Status().Has(option.TradeIsOpen) {
			return errors.NewOptionError(l.opt.ID(), "close", fmt.Sprintf("leg of %s position %d", b.typ, b.id), errors.ErrNoTradeOpen)
		}
	}

	for _, l := range b.legs {
		contracts := abs(l.ratio) * n
		if _, err := l.opt.Close(&contracts, bag); err != nil {
			return errors.Wrapf(err, "%s position %d", b.typ, b.id)
		}
	}
	b.userDefined = b.userDefined.Merge(bag)
	return nil
}

// Status is the intersection of the leg statuses: a flag is set only when
// every leg carries it.
func (b *base) Status() option.Status {
	s := b.legs[0].opt.Status()
	for _, l := range b.legs[1:] {
		s &= l.opt.Status()
	}
	return s
}

// IsOpen reports whether every leg holds an open trade.
func (b *base) IsOpen() bool {
	return b.opened && b.Status().Has(option.TradeIsOpen)
}

// Price is the current net price of one unit; debits are positive.
func (b *base) Price() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.legs {
		total = total.Add(l.opt.Price().Mul(decimal.NewFromInt(int64(l.ratio))))
	}
	return total
}

// TradePrice is the net opening price of one unit.
func (b *base) TradePrice() (decimal.Decimal, error) {
	if !b.opened {
		return decimal.Zero, errors.Wrapf(errors.ErrNoTrade, "%s position %d", b.typ, b.id)
	}
	total := decimal.Zero
	for _, l := range b.legs {
		info, _ := l.opt.OpenInfo()
		total = total.Add(info.Price.Mul(decimal.NewFromInt(int64(l.ratio))))
	}
	return total, nil
}

// netPrice is the opening price once open and the current price before.
func (b *base) netPrice() decimal.Decimal {
	if p, err := b.TradePrice(); err == nil {
		return p
	}
	return b.Price()
}

// DTE returns the days to the nearest leg expiration.
func (b *base) DTE() int {
	dte := b.legs[0].opt.DTE()
	for _, l := range b.legs[1:] {
		if d := l.opt.DTE(); d < dte {
			dte = d
		}
	}
	return dte
}

// MaxProfit is the best expiration outcome at the current size. Valid is
// false when the profit is unbounded or needs a pricing model.
func (b *base) MaxProfit() decimal.NullDecimal { return b.risk.maxProfit(b.quantity) }

// MaxLoss is the worst expiration outcome at the current size, as a positive
// amount. Valid is false when the loss is unbounded or needs a pricing model.
func (b *base) MaxLoss() decimal.NullDecimal { return b.risk.maxLoss(b.quantity) }

// MaxProfitFor is MaxProfit for quantity units.
func (b *base) MaxProfitFor(quantity int) decimal.NullDecimal { return b.risk.maxProfit(quantity) }

// MaxLossFor is MaxLoss for quantity units.
func (b *base) MaxLossFor(quantity int) decimal.NullDecimal { return b.risk.maxLoss(quantity) }

// MarginFor returns the margin quantity units would require.
func (b *base) MarginFor(quantity int) decimal.Decimal { return b.risk.margin(quantity) }

// RequiredMargin is the margin held by the open units, or by the constructed
// size before opening. A closed position holds none.
func (b *base) RequiredMargin() decimal.Decimal {
	if !b.opened {
		return b.risk.margin(b.quantity)
	}
	remaining := b.RemainingQuantity()
	if remaining == 0 {
		return decimal.Zero
	}
	return b.risk.margin(remaining)
}

// Breakevens returns the underlying prices at which the position breaks even
// at expiration. Legs with different expirations have none without a pricing model.
func (b *base) Breakevens() []decimal.Decimal {
	p, ok := b.payoff()
	if !ok {
		return nil
	}
	return p.breakevens()
}

// CurrentValue sums the leg current values.
func (b *base) CurrentValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.legs {
		total = total.Add(l.opt.CurrentValue())
	}
	return total
}

// TradeValue sums the leg opening premiums.
func (b *base) TradeValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.legs {
		total = total.Add(l.opt.TradeValue())
	}
	return total
}

// ClosedValue sums the leg close premiums. It is only defined once every leg
// has at least one close record.
func (b *base) ClosedValue() decimal.NullDecimal {
	total := decimal.Zero
	for _, l := range b.legs {
		if _, ok := l.opt.AggregateCloseInfo(); !ok {
			return decimal.NullDecimal{}
		}
		total = total.Add(l.opt.ClosedValue())
	}
	return decimal.NullDecimal{Decimal: total, Valid: true}
}

// ProfitLoss sums realized and unrealized profit/loss across legs.
func (b *base) ProfitLoss() (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range b.legs {
		pnl, err := l.opt.ProfitLoss()
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(pnl)
	}
	return total, nil
}

// UnrealizedProfitLoss sums unrealized profit/loss across legs.
func (b *base) UnrealizedProfitLoss() (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range b.legs {
		pnl, err := l.opt.UnrealizedProfitLoss()
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(pnl)
	}
	return total, nil
}

// RealizedProfitLoss sums closed profit/loss across legs.
func (b *base) RealizedProfitLoss() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.legs {
		total = total.Add(l.opt.RealizedProfitLoss())
	}
	return total
}

// Fees sums the open and close fees charged on every leg.
func (b *base) Fees() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.legs {
		total = total.Add(l.opt.TotalFees())
	}
	return total
}

// OpenTime is the open date of the first leg, once every leg is open.
func (b *base) OpenTime() (time.Time, bool) {
	for _, l := range b.legs {
		if _, ok := l.opt.OpenInfo(); !ok {
			return time.Time{}, false
		}
	}
	info, _ := b.legs[0].opt.OpenInfo()
	return info.Date, true
}

// CloseTime is the latest close date of the first leg.
func (b *base) CloseTime() (time.Time, bool) {
	agg, ok := b.legs[0].opt.AggregateCloseInfo()
	if !ok {
		return time.Time{}, false
	}
	return agg.Date, true
}

// UserDefined returns a copy of the position annotations.
func (b *base) UserDefined() models.UserDefined {
	return b.userDefined.Clone()
}

// SetUserDefined stores one position annotation.
func (b *base) SetUserDefined(key string, v models.Value) {
	b.userDefined = b.userDefined.Merge(models.UserDefined{key: v})
}

func (b *base) String() string {
	parts := make([]string, len(b.legs))
	for i, l := range b.legs {
		parts[i] = fmt.Sprintf("%+d %s", l.ratio*b.quantity, l.opt)
	}
	return fmt.Sprintf("%s #%d %s [%s]", b.typ, b.id, b.positionType, strings.Join(parts, ", "))
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
