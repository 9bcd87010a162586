// Package portfolio holds cash and option positions during a backtest and
// keeps the cash ledger in step with the events its options emit.
//
// A Portfolio is driven from a single goroutine. Cash changes only inside
// the opened, closed and fees handlers bound to each leg; the position
// collections change only in OpenPosition and ClosePosition.
package portfolio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/chain"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/combo"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/events"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/logging"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// ValueSample is the portfolio value recorded by one Next call.
type ValueSample struct {
	Time  time.Time
	Value decimal.Decimal
}

// PositionEvent is emitted when a position opens.
type PositionEvent struct {
	Position combo.Combination
	Time     time.Time
}

// ClosedPosition is the record kept for a fully closed position.
//
// ProfitLoss is the realized result limited to the position's maximum
// profit and loss; RawProfitLoss is what the legs actually reported.
type ClosedPosition struct {
	Position      combo.Combination
	ProfitLoss    decimal.Decimal
	RawProfitLoss decimal.Decimal
	Clamped       bool
	Expired       bool
	ClosedAt      time.Time
}

type binding struct {
	opt     *option.Option
	opened  events.Subscription
	closed  events.Subscription
	expired events.Subscription
	fees    events.Subscription
}

// Portfolio holds cash, open positions in the order they were opened, and
// closed position records.
type Portfolio struct {
	logger zerolog.Logger

	cash        decimal.Decimal
	open        map[int64]combo.Combination
	order       []int64
	closed      map[int64]ClosedPosition
	closedOrder []int64
	owner       map[*option.Option]int64
	bindings    map[int64][]binding
	chains      map[string]*chain.Chain
	samples     []ValueSample
	now         time.Time

	// handlerErr holds the first failure raised inside an event handler
	// until the enclosing call returns it.
	handlerErr error

	positionOpened  events.Signal[PositionEvent]
	positionClosed  events.Signal[ClosedPosition]
	positionExpired events.Signal[ClosedPosition]
}

// New creates a portfolio holding cash.
func New(cash decimal.Decimal, logger zerolog.Logger) *Portfolio {
	return &Portfolio{
		logger:   logger.With().Str("component", "portfolio").Logger(),
		cash:     utils.Decimal2(cash),
		open:     make(map[int64]combo.Combination),
		closed:   make(map[int64]ClosedPosition),
		owner:    make(map[*option.Option]int64),
		bindings: make(map[int64][]binding),
		chains:   make(map[string]*chain.Chain),
	}
}

// Cash returns the cash balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// Now returns the time of the last Next call.
func (p *Portfolio) Now() time.Time { return p.now }

// PositionOpened fires after a position opens.
func (p *Portfolio) PositionOpened() *events.Signal[PositionEvent] { return &p.positionOpened }

// PositionClosed fires after a position is fully closed, including by expiry.
func (p *Portfolio) PositionClosed() *events.Signal[ClosedPosition] { return &p.positionClosed }

// PositionExpired fires after every leg of a position has expired and the
// position has been closed.
func (p *Portfolio) PositionExpired() *events.Signal[ClosedPosition] { return &p.positionExpired }

// OpenPositions returns the open positions in the order they were opened.
func (p *Portfolio) OpenPositions() []combo.Combination {
	out := make([]combo.Combination, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.open[id])
	}
	return out
}

// ClosedPositions returns the closed position records in the order they closed.
func (p *Portfolio) ClosedPositions() []ClosedPosition {
	out := make([]ClosedPosition, 0, len(p.closedOrder))
	for _, id := range p.closedOrder {
		out = append(out, p.closed[id])
	}
	return out
}

// Position returns an open position by id.
func (p *Portfolio) Position(id int64) (combo.Combination, bool) {
	c, ok := p.open[id]
	return c, ok
}

// ClosedPosition returns the record of a closed position by id.
func (p *Portfolio) ClosedPosition(id int64) (ClosedPosition, bool) {
	r, ok := p.closed[id]
	return r, ok
}

// MarginInUse sums the margin required by the open positions.
func (p *Portfolio) MarginInUse() decimal.Decimal {
	total := decimal.Zero
	for _, id := range p.order {
		total = total.Add(p.open[id].RequiredMargin())
	}
	return total
}

// AvailableMargin is cash not held as margin.
func (p *Portfolio) AvailableMargin() decimal.Decimal {
	return p.cash.Sub(p.MarginInUse())
}

// Value is cash plus the current value of every open leg.
func (p *Portfolio) Value() decimal.Decimal {
	total := p.cash
	for _, id := range p.order {
		total = total.Add(p.open[id].CurrentValue())
	}
	return total
}

// Samples returns the value recorded by each Next call.
func (p *Portfolio) Samples() []ValueSample {
	out := make([]ValueSample, len(p.samples))
	copy(out, p.samples)
	return out
}

// SetChain stores the latest chain snapshot for its symbol.
func (p *Portfolio) SetChain(ch *chain.Chain) {
	p.chains[ch.Symbol()] = ch
}

// Chain returns the latest chain snapshot for symbol.
func (p *Portfolio) Chain(symbol string) (*chain.Chain, bool) {
	ch, ok := p.chains[symbol]
	return ch, ok
}

// OpenPosition opens quantity units of c and starts tracking it.
//
// A position that needs margin, whatever its direction, is refused with an
// error matching errors.ErrInsufficientMargin when that margin exceeds the
// available margin. Legs that have already expired are refused with
// errors.ErrOptionExpired. Nothing is bound or opened when any check fails.
func (p *Portfolio) OpenPosition(c combo.Combination, quantity int, bag models.UserDefined) error {
	if _, ok := p.open[c.ID()]; ok {
		return errors.Wrapf(errors.ErrPositionExists, "position %d", c.ID())
	}
	if _, ok := p.closed[c.ID()]; ok {
		return errors.Wrapf(errors.ErrPositionExists, "position %d is closed", c.ID())
	}
	for _, o := range c.Options() {
		if id, ok := p.owner[o]; ok {
			return errors.NewOptionError(o.ID(), "open", fmt.Sprintf("held by position %d", id), errors.ErrTradeAlreadyOpen)
		}
		if o.IsExpired() {
			return errors.NewOptionError(o.ID(), "open", fmt.Sprintf("leg of position %d", c.ID()), errors.ErrOptionExpired)
		}
	}
	if quantity <= 0 {
		return errors.Wrapf(errors.ErrInvalidQuantity, "position %d: open quantity %d", c.ID(), quantity)
	}

	log := logging.WithPosition(p.logger, c.ID(), string(c.Type()))
	if required := c.MarginFor(quantity); required.IsPositive() {
		available := p.AvailableMargin()
		if required.GreaterThan(available) {
			log.Debug().
				Stringer("required", required).
				Stringer("available", available).
				Msg("Margin check failed")
			return errors.NewRiskError("margin", required.StringFixed(2), available.StringFixed(2),
				fmt.Sprintf("position %d needs more margin than is available", c.ID()), errors.ErrInsufficientMargin)
		}
	}

	p.bind(c)
	p.handlerErr = nil
	if err := c.Open(quantity, bag); err != nil {
		p.unbind(c.ID())
		return err
	}
	if err := p.takeHandlerErr(); err != nil {
		return err
	}

	p.open[c.ID()] = c
	p.order = append(p.order, c.ID())

	opened, _ := c.OpenTime()
	logging.LogPosition(log, "opened", quantity, decimal.Zero, p.cash)
	p.positionOpened.Emit(PositionEvent{Position: c, Time: opened})
	return nil
}

// ClosePosition closes quantity units of an open position, or all of it
// when quantity is nil. A fully closed position moves to the closed records
// with its realized profit/loss limited to its maximum profit and loss.
func (p *Portfolio) ClosePosition(id int64, quantity *int) error {
	p.handlerErr = nil
	if _, err := p.closePosition(id, quantity, false); err != nil {
		return err
	}
	return p.takeHandlerErr()
}

func (p *Portfolio) closePosition(id int64, quantity *int, expired bool) (ClosedPosition, error) {
	c, ok := p.open[id]
	if !ok {
		return ClosedPosition{}, errors.Wrapf(errors.ErrPositionNotFound, "position %d", id)
	}
	log := logging.WithPosition(p.logger, id, string(c.Type()))

	if err := c.Close(quantity, nil); err != nil {
		return ClosedPosition{}, err
	}
	if c.RemainingQuantity() > 0 {
		log.Debug().
			Int("remaining", c.RemainingQuantity()).
			Stringer("cash", p.cash).
			Msg("Position partially closed")
		return ClosedPosition{}, nil
	}

	raw, err := c.ProfitLoss()
	if err != nil {
		return ClosedPosition{}, err
	}
	rec := ClosedPosition{
		Position:      c,
		ProfitLoss:    raw,
		RawProfitLoss: raw,
		Expired:       expired,
	}
	rec.ClosedAt, _ = c.CloseTime()
	if clamped, changed := clampProfitLoss(c, raw); changed {
		rec.ProfitLoss = clamped
		rec.Clamped = true
		log.Warn().
			Stringer("raw_profit_loss", raw).
			Stringer("profit_loss", clamped).
			Msg("Realized profit/loss outside position bounds, clamped")
	}

	p.unbind(id)
	delete(p.open, id)
	p.order = removeID(p.order, id)
	p.closed[id] = rec
	p.closedOrder = append(p.closedOrder, id)

	event := "closed"
	if expired {
		event = "expired"
	}
	logging.LogPosition(log, event, c.Quantity(), rec.ProfitLoss, p.cash)
	p.positionClosed.Emit(rec)
	return rec, nil
}

// clampProfitLoss limits pnl to [-max loss, max profit] for the opened size.
// Collar bounds include the covered shares, which the legs do not hold, so
// collars are never clamped.
func clampProfitLoss(c combo.Combination, pnl decimal.Decimal) (decimal.Decimal, bool) {
	if c.Type() == combo.TypeCollar {
		return pnl, false
	}
	if hi := c.MaxProfitFor(c.Quantity()); hi.Valid && pnl.GreaterThan(hi.Decimal) {
		return hi.Decimal, true
	}
	if lo := c.MaxLossFor(c.Quantity()); lo.Valid && pnl.LessThan(lo.Decimal.Neg()) {
		return lo.Decimal.Neg(), true
	}
	return pnl, false
}

// Next advances every open leg to t in the order the positions were opened,
// then records the portfolio value. Positions whose legs have all expired
// are closed during the call.
func (p *Portfolio) Next(t time.Time) error {
	p.now = t
	p.handlerErr = nil

	ids := make([]int64, len(p.order))
	copy(ids, p.order)
	for _, id := range ids {
		c, ok := p.open[id]
		if !ok {
			continue
		}
		for _, o := range c.Options() {
			if err := o.Next(t); err != nil {
				return errors.Wrapf(err, "position %d", id)
			}
			if err := p.takeHandlerErr(); err != nil {
				return err
			}
		}
	}

	p.samples = append(p.samples, ValueSample{Time: t, Value: p.Value()})
	return nil
}

func (p *Portfolio) bind(c combo.Combination) {
	id := c.ID()
	for _, o := range c.Options() {
		p.owner[o] = id
		p.bindings[id] = append(p.bindings[id], binding{
			opt:     o,
			opened:  o.Opened().Connect(p.onOpened),
			closed:  o.Closed().Connect(p.onClosed),
			expired: o.Expired().Connect(p.onExpired),
			fees:    o.FeesIncurred().Connect(p.onFees),
		})
	}
}

func (p *Portfolio) unbind(id int64) {
	for _, b := range p.bindings[id] {
		b.opt.Opened().Disconnect(b.opened)
		b.opt.Closed().Disconnect(b.closed)
		b.opt.Expired().Disconnect(b.expired)
		b.opt.FeesIncurred().Disconnect(b.fees)
		delete(p.owner, b.opt)
	}
	delete(p.bindings, id)
}

func (p *Portfolio) onOpened(e option.OpenedEvent) {
	p.cash = p.cash.Sub(e.Info.Premium)
	logging.LogOptionTrade(p.logger, "open", e.Option.ID(), e.Info.Quantity, e.Info.Price, e.Info.Premium, e.Info.Date)
}

func (p *Portfolio) onClosed(e option.ClosedEvent) {
	p.cash = p.cash.Sub(e.Info.Premium)
	logging.LogOptionTrade(p.logger, "close", e.Option.ID(), e.Info.Quantity, e.Info.Price, e.Info.Premium, e.Info.Date)
}

func (p *Portfolio) onFees(e option.FeesEvent) {
	p.cash = p.cash.Sub(e.Amount)
}

func (p *Portfolio) onExpired(e option.ExpiredEvent) {
	id, ok := p.owner[e.Option]
	if !ok {
		return
	}
	c := p.open[id]
	if c == nil || c.RemainingQuantity() == 0 {
		return
	}
	for _, o := range c.Options() {
		if !o.IsExpired() {
			return
		}
	}

	rec, err := p.closePosition(id, nil, true)
	if err != nil {
		p.setHandlerErr(errors.Wrapf(err, "closing expired position %d", id))
		return
	}
	p.positionExpired.Emit(rec)
}

func (p *Portfolio) setHandlerErr(err error) {
	if p.handlerErr == nil {
		p.handlerErr = err
	}
}

func (p *Portfolio) takeHandlerErr() error {
	err := p.handlerErr
	p.handlerErr = nil
	return err
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
