package combo

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// timeSpread is a near and a far option of one type held in opposite
// directions. It is long when the far option is bought.
//
// Its outcome at the near expiration depends on the far option's remaining
// time value, so the side that needs a pricing model is reported as unknown.
type timeSpread struct {
	near *option.Option
	far  *option.Option
	long bool
}

func newTimeSpread(typ Type, near, far Leg) (timeSpread, error) {
	fail := func(reason string) (timeSpread, error) {
		return timeSpread{}, errors.NewCombinationError(string(typ), reason)
	}
	if near.Option == nil || far.Option == nil {
		return fail("missing leg")
	}
	if near.Option.Type() != far.Option.Type() {
		return fail("legs must be the same option type")
	}
	if !utils.DateAfter(far.Option.Expiration(), near.Option.Expiration()) {
		return fail("far leg must expire after near leg")
	}
	if near.Quantity == 0 || near.Quantity+far.Quantity != 0 {
		return fail("leg quantities must be opposite and equal")
	}
	return timeSpread{near: near.Option, far: far.Option, long: far.Quantity > 0}, nil
}

func (t timeSpread) direction() models.PositionType {
	if t.long {
		return models.Long
	}
	return models.Short
}

// NearLeg returns the earlier-expiring option.
func (t timeSpread) NearLeg() *option.Option { return t.near }

// FarLeg returns the later-expiring option.
func (t timeSpread) FarLeg() *option.Option { return t.far }

func (t timeSpread) maxProfitWith(net decimal.Decimal, q int) decimal.NullDecimal {
	if t.long {
		return unbounded
	}
	return bounded(money(net.Abs(), q))
}

func (t timeSpread) maxLossWith(net decimal.Decimal, q int) decimal.NullDecimal {
	if t.long {
		return bounded(money(net.Abs(), q))
	}
	return unbounded
}

// Calendar is a time spread at one strike.
type Calendar struct {
	*base
	timeSpread
}

// NewCalendar builds a calendar spread from a near and a far leg.
func NewCalendar(near, far Leg, opts ...Opt) (*Calendar, error) {
	ts, err := newTimeSpread(TypeCalendar, near, far)
	if err != nil {
		return nil, err
	}
	if !ts.near.Strike().Equal(ts.far.Strike()) {
		return nil, errors.NewCombinationError(string(TypeCalendar), "legs must share a strike")
	}
	bs, err := newBase(TypeCalendar, []Leg{near, far}, opts...)
	if err != nil {
		return nil, err
	}
	c := &Calendar{base: bs, timeSpread: ts}
	bs.positionType = ts.direction()
	bs.risk = c
	return c, nil
}

func (c *Calendar) maxProfit(q int) decimal.NullDecimal { return c.maxProfitWith(c.netPrice(), q) }
func (c *Calendar) maxLoss(q int) decimal.NullDecimal   { return c.maxLossWith(c.netPrice(), q) }

func (c *Calendar) margin(q int) decimal.Decimal {
	if c.long {
		return decimal.Zero
	}
	return nakedMargin(c.far, q)
}

// Diagonal is a time spread across two strikes.
type Diagonal struct {
	*base
	timeSpread
}

// NewDiagonal builds a diagonal spread from a near and a far leg.
func NewDiagonal(near, far Leg, opts ...Opt) (*Diagonal, error) {
	ts, err := newTimeSpread(TypeDiagonal, near, far)
	if err != nil {
		return nil, err
	}
	if ts.near.Strike().Equal(ts.far.Strike()) {
		return nil, errors.NewCombinationError(string(TypeDiagonal), "strikes must differ")
	}
	bs, err := newBase(TypeDiagonal, []Leg{near, far}, opts...)
	if err != nil {
		return nil, err
	}
	d := &Diagonal{base: bs, timeSpread: ts}
	bs.positionType = ts.direction()
	bs.risk = d
	return d, nil
}

func (d *Diagonal) maxProfit(q int) decimal.NullDecimal { return d.maxProfitWith(d.netPrice(), q) }
func (d *Diagonal) maxLoss(q int) decimal.NullDecimal   { return d.maxLossWith(d.netPrice(), q) }

// margin is zero when the long far option covers the short near one, the
// strike difference when it only partly covers it, and naked margin on the
// far option when that is the one sold.
func (d *Diagonal) margin(q int) decimal.Decimal {
	if !d.long {
		return nakedMargin(d.far, q)
	}
	gap := d.far.Strike().Sub(d.near.Strike())
	if d.far.Type() == models.Put {
		gap = gap.Neg()
	}
	if !gap.IsPositive() {
		return decimal.Zero
	}
	return money(gap, q)
}
