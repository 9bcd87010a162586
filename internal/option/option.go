// Package option implements a single option contract with its quote state,
// trade lifecycle, fee and profit/loss accounting and lifecycle events.
package option

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/events"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Option is one contract plus the trade held in it.
//
// The contract never changes. The quote is replaced wholesale by every update
// until the option expires. The trade opens once, closes in one or more
// transactions, and every state change is announced on the option's signals.
type Option struct {
	contract models.Contract
	quote    models.Quote
	greeks   models.Greeks
	extended models.Extended

	cfg Config
	fee decimal.Decimal

	status       Status
	quantity     int
	positionType models.PositionType
	openInfo     *TradeOpenInfo
	closeInfos   []TradeCloseInfo
	aggregate    *TradeCloseInfo
	totalFees    decimal.Decimal

	updates     []models.OptionRecord
	userDefined models.UserDefined

	opened  events.Signal[OpenedEvent]
	closed  events.Signal[ClosedEvent]
	expired events.Signal[ExpiredEvent]
	fees    events.Signal[FeesEvent]
}

// Opt configures optional construction fields.
type Opt func(*Option)

// WithGreeks sets the initial greeks.
func WithGreeks(g models.Greeks) Opt {
	return func(o *Option) { o.greeks = g }
}

// WithExtended sets the initial open interest, implied volatility and volume.
func WithExtended(e models.Extended) Opt {
	return func(o *Option) { o.extended = e }
}

// WithFee overrides the configured per-contract fee for this option.
func WithFee(fee decimal.Decimal) Opt {
	return func(o *Option) { o.fee = fee }
}

// WithUserDefined attaches caller annotations.
func WithUserDefined(u models.UserDefined) Opt {
	return func(o *Option) { o.userDefined = o.userDefined.Merge(u) }
}

// New validates the contract and quote and returns an INITIALIZED option.
func New(cfg Config, contract models.Contract, quote models.Quote, opts ...Opt) (*Option, error) {
	if err := validateContract(contract); err != nil {
		return nil, err
	}
	if err := validateQuote(quote); err != nil {
		return nil, err
	}
	if utils.DateAfter(quote.Time, contract.Expiration) {
		return nil, errors.NewValidationError("quote_datetime", quote.Time,
			fmt.Sprintf("quote date is after expiration %s", contract.Expiration.Format("2006-01-02")))
	}

	o := &Option{
		contract:  contract,
		quote:     quote,
		cfg:       cfg,
		fee:       cfg.FeePerContract,
		status:    Initialized,
		totalFees: decimal.Zero,
	}
	for _, opt := range opts {
		opt(o)
	}
	if utils.IsPastCutoff(quote.Time, contract.Expiration, cfg.marketClose()) {
		o.status = o.status.With(Expired)
	}
	return o, nil
}

// FromRecord builds an option from a chain or feed record.
func FromRecord(cfg Config, rec models.OptionRecord, opts ...Opt) (*Option, error) {
	opts = append([]Opt{WithGreeks(rec.Greeks), WithExtended(rec.Extended)}, opts...)
	return New(cfg, rec.Contract, rec.Quote, opts...)
}

func validateContract(c models.Contract) error {
	switch {
	case c.OptionID == "":
		return errors.NewValidationError("option_id", c.OptionID, "required")
	case c.Symbol == "":
		return errors.NewValidationError("symbol", c.Symbol, "required")
	case !c.Strike.IsPositive():
		return errors.NewValidationError("strike", c.Strike, "must be positive")
	case c.Expiration.IsZero():
		return errors.NewValidationError("expiration", c.Expiration, "required")
	case !c.Type.Valid():
		return errors.NewValidationError("option_type", c.Type, "must be CALL or PUT")
	}
	return nil
}

func validateQuote(q models.Quote) error {
	switch {
	case q.Time.IsZero():
		return errors.NewValidationError("quote_datetime", q.Time, "not a recognized date/time")
	case q.SpotPrice.IsNegative():
		return errors.NewValidationError("spot_price", q.SpotPrice, "must not be negative")
	case q.Bid.IsNegative():
		return errors.NewValidationError("bid", q.Bid, "must not be negative")
	case q.Ask.IsNegative():
		return errors.NewValidationError("ask", q.Ask, "must not be negative")
	case q.Price.IsNegative():
		return errors.NewValidationError("price", q.Price, "must not be negative")
	}
	return nil
}

// ID returns the option id.
func (o *Option) ID() string { return o.contract.OptionID }

// Symbol returns the underlying symbol.
func (o *Option) Symbol() string { return o.contract.Symbol }

// Strike returns the strike price.
func (o *Option) Strike() decimal.Decimal { return o.contract.Strike }

// Expiration returns the expiration date.
func (o *Option) Expiration() time.Time { return o.contract.Expiration }

// Type returns CALL or PUT.
func (o *Option) Type() models.OptionType { return o.contract.Type }

// Contract returns the immutable contract identity.
func (o *Option) Contract() models.Contract { return o.contract }

// Quote returns the current quote.
func (o *Option) Quote() models.Quote { return o.quote }

// QuoteTime returns the time of the current quote.
func (o *Option) QuoteTime() time.Time { return o.quote.Time }

// Price returns the current quoted price.
func (o *Option) Price() decimal.Decimal { return o.quote.Price }

// SpotPrice returns the current underlying price.
func (o *Option) SpotPrice() decimal.Decimal { return o.quote.SpotPrice }

// Greeks returns the current greeks.
func (o *Option) Greeks() models.Greeks { return o.greeks }

// Extended returns the current extended fields.
func (o *Option) Extended() models.Extended { return o.extended }

// Status returns the lifecycle flags.
func (o *Option) Status() Status { return o.status }

// Quantity returns the signed quantity still open.
func (o *Option) Quantity() int { return o.quantity }

// PositionType returns LONG or SHORT once a trade has opened.
func (o *Option) PositionType() models.PositionType { return o.positionType }

// TotalFees returns all fees charged so far.
func (o *Option) TotalFees() decimal.Decimal { return o.totalFees }

// Fee returns the per-contract fee in effect for this option.
func (o *Option) Fee() decimal.Decimal { return o.fee }

// Config returns the configuration the option was built with.
func (o *Option) Config() Config { return o.cfg }

// IsExpired reports whether the Expired flag is set.
func (o *Option) IsExpired() bool { return o.status.Has(Expired) }

// OpenInfo returns the opening record, if the trade has been opened.
func (o *Option) OpenInfo() (TradeOpenInfo, bool) {
	if o.openInfo == nil {
		return TradeOpenInfo{}, false
	}
	return *o.openInfo, true
}

// CloseInfos returns the close transactions in chronological order.
func (o *Option) CloseInfos() []TradeCloseInfo {
	out := make([]TradeCloseInfo, len(o.closeInfos))
	copy(out, o.closeInfos)
	return out
}

// AggregateCloseInfo returns the quantity-weighted aggregate of all close transactions.
func (o *Option) AggregateCloseInfo() (TradeCloseInfo, bool) {
	if o.aggregate == nil {
		return TradeCloseInfo{}, false
	}
	return *o.aggregate, true
}

// UserDefined returns a copy of the caller annotations.
func (o *Option) UserDefined() models.UserDefined {
	return o.userDefined.Clone()
}

// SetUserDefined stores one caller annotation.
func (o *Option) SetUserDefined(key string, v models.Value) {
	o.userDefined = o.userDefined.Merge(models.UserDefined{key: v})
}

// Opened is the signal fired when the trade opens.
func (o *Option) Opened() *events.Signal[OpenedEvent] { return &o.opened }

// Closed is the signal fired for each close transaction.
func (o *Option) Closed() *events.Signal[ClosedEvent] { return &o.closed }

// Expired is the signal fired once when the option expires.
func (o *Option) Expired() *events.Signal[ExpiredEvent] { return &o.expired }

// FeesIncurred is the signal fired with each incremental fee.
func (o *Option) FeesIncurred() *events.Signal[FeesEvent] { return &o.fees }

// DTE returns whole calendar days from the quote date to expiration.
func (o *Option) DTE() int {
	return utils.DaysBetween(o.quote.Time, o.contract.Expiration)
}

// ITM reports whether the option is in the money. ok is false when no
// underlying price is available.
func (o *Option) ITM() (itm bool, ok bool) {
	spot := o.quote.SpotPrice
	if spot.IsZero() {
		return false, false
	}
	if o.contract.Type == models.Call {
		return spot.GreaterThan(o.contract.Strike), true
	}
	return spot.LessThan(o.contract.Strike), true
}

// OTM reports whether the option has no intrinsic value. ok is false when no
// underlying price is available.
func (o *Option) OTM() (otm bool, ok bool) {
	itm, ok := o.ITM()
	if !ok {
		return false, false
	}
	return !itm, true
}

// IntrinsicValue returns the per-share value if exercised at the current spot.
func (o *Option) IntrinsicValue() decimal.Decimal {
	return Intrinsic(o.contract.Type, o.contract.Strike, o.quote.SpotPrice)
}

// Intrinsic returns max(spot - strike, 0) for calls and max(strike - spot, 0) for puts.
func Intrinsic(t models.OptionType, strike, spot decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	if t == models.Call {
		v = spot.Sub(strike)
	} else {
		v = strike.Sub(spot)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Update applies a new quote snapshot.
//
// Once expired the option ignores further updates. A quote dated after the
// expiration date is not applied; it only marks the option expired. A quote on
// the expiration date at or after the market-close cutoff is applied and then
// marks the option expired. Quotes earlier than the current one are rejected.
func (o *Option) Update(rec models.OptionRecord) error {
	if o.status.Has(Expired) {
		return nil
	}

	q := rec.Quote
	if q.Time.IsZero() {
		return errors.NewValidationError("quote_datetime", q.Time, "not a recognized date/time")
	}
	if rec.Contract.OptionID != "" && rec.Contract.OptionID != o.contract.OptionID {
		return errors.NewValidationError("option_id", rec.Contract.OptionID,
			fmt.Sprintf("update belongs to a different option than %s", o.contract.OptionID))
	}
	if q.Time.Before(o.quote.Time) {
		return errors.NewOptionError(o.contract.OptionID, "update",
			fmt.Sprintf("%s is before %s", q.Time.Format(time.RFC3339), o.quote.Time.Format(time.RFC3339)),
			errors.ErrNonMonotonicUpdate)
	}
	if utils.DateAfter(q.Time, o.contract.Expiration) {
		o.expire(q.Time)
		return nil
	}
	if err := validateQuote(q); err != nil {
		return err
	}

	o.quote = q
	o.greeks = rec.Greeks
	o.extended = rec.Extended

	o.checkExpiration(q.Time)
	return nil
}

// SetUpdates replaces the pending update feed. Records are consumed in time order by Next.
func (o *Option) SetUpdates(records []models.OptionRecord) {
	o.updates = make([]models.OptionRecord, len(records))
	copy(o.updates, records)
	sortRecords(o.updates)
}

// AppendUpdates adds records to the pending update feed.
func (o *Option) AppendUpdates(records ...models.OptionRecord) {
	o.updates = append(o.updates, records...)
	sortRecords(o.updates)
}

// PendingUpdates returns how many feed records have not been consumed.
func (o *Option) PendingUpdates() int {
	return len(o.updates)
}

func sortRecords(records []models.OptionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Quote.Time.Before(records[j].Quote.Time)
	})
}

// Next advances the option to time t using the pending update feed.
//
// Feed records older than t are skipped. If the next record is dated exactly
// t it is applied; otherwise Next is a no-op apart from the clock-driven
// expiration check.
func (o *Option) Next(t time.Time) error {
	if o.status.Has(Expired) {
		return nil
	}

	for len(o.updates) > 0 && o.updates[0].Quote.Time.Before(t) {
		o.updates = o.updates[1:]
	}
	if len(o.updates) > 0 && o.updates[0].Quote.Time.Equal(t) {
		rec := o.updates[0]
		o.updates = o.updates[1:]
		return o.Update(rec)
	}

	o.checkExpiration(t)
	return nil
}

func (o *Option) checkExpiration(t time.Time) {
	if utils.DateAfter(t, o.contract.Expiration) || utils.IsPastCutoff(t, o.contract.Expiration, o.cfg.marketClose()) {
		o.expire(t)
	}
}

func (o *Option) expire(t time.Time) {
	if o.status.Has(Expired) {
		return
	}
	o.status = o.status.With(Expired)
	o.expired.Emit(ExpiredEvent{Option: o, Time: t})
}

func (o *Option) String() string {
	return fmt.Sprintf("%s %s %s %s", o.contract.Symbol, o.contract.Expiration.Format("2006-01-02"),
		o.contract.Strike.String(), o.contract.Type)
}
