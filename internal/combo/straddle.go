package combo

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Straddle is a put and a call at the same strike, both bought or both sold.
type Straddle struct {
	*base
	straddleLegs
}

// Strangle is a put and a higher-strike call, both bought or both sold.
type Strangle struct {
	*base
	straddleLegs
}

type straddleLegs struct {
	put  *option.Option
	call *option.Option
	long bool
}

// NewStraddle builds a straddle. Positive quantities are long.
func NewStraddle(put, call Leg, opts ...Opt) (*Straddle, error) {
	legs, err := validateStraddleLegs(TypeStraddle, put, call)
	if err != nil {
		return nil, err
	}
	if !put.Option.Strike().Equal(call.Option.Strike()) {
		return nil, errors.NewCombinationError(string(TypeStraddle), "put and call strikes must be equal")
	}
	bs, err := newBase(TypeStraddle, []Leg{put, call}, opts...)
	if err != nil {
		return nil, err
	}
	s := &Straddle{base: bs, straddleLegs: legs}
	bs.positionType = legs.direction()
	bs.risk = s
	return s, nil
}

// NewStrangle builds a strangle. Positive quantities are long.
func NewStrangle(put, call Leg, opts ...Opt) (*Strangle, error) {
	legs, err := validateStraddleLegs(TypeStrangle, put, call)
	if err != nil {
		return nil, err
	}
	if !call.Option.Strike().GreaterThan(put.Option.Strike()) {
		return nil, errors.NewCombinationError(string(TypeStrangle), "call strike must be above put strike")
	}
	bs, err := newBase(TypeStrangle, []Leg{put, call}, opts...)
	if err != nil {
		return nil, err
	}
	s := &Strangle{base: bs, straddleLegs: legs}
	bs.positionType = legs.direction()
	bs.risk = s
	return s, nil
}

func validateStraddleLegs(typ Type, put, call Leg) (straddleLegs, error) {
	fail := func(reason string) (straddleLegs, error) {
		return straddleLegs{}, errors.NewCombinationError(string(typ), reason)
	}
	switch {
	case put.Option == nil || call.Option == nil:
		return fail("missing leg")
	case put.Option.Type() != models.Put || call.Option.Type() != models.Call:
		return fail("requires one put and one call")
	case put.Option.Symbol() != call.Option.Symbol():
		return fail("legs must share a symbol")
	case !sameExpiration(put.Option, call.Option):
		return fail("legs must share an expiration")
	case put.Quantity != call.Quantity || put.Quantity == 0:
		return fail("legs must have the same quantity and direction")
	}
	return straddleLegs{put: put.Option, call: call.Option, long: put.Quantity > 0}, nil
}

// PutLeg returns the put.
func (s straddleLegs) PutLeg() *option.Option { return s.put }

// CallLeg returns the call.
func (s straddleLegs) CallLeg() *option.Option { return s.call }

func (s straddleLegs) direction() models.PositionType {
	if s.long {
		return models.Long
	}
	return models.Short
}

func (s straddleLegs) maxProfitWith(net decimal.Decimal, q int) decimal.NullDecimal {
	if s.long {
		return unbounded
	}
	return bounded(money(net.Abs(), q))
}

func (s straddleLegs) maxLossWith(net decimal.Decimal, q int) decimal.NullDecimal {
	if s.long {
		return bounded(money(net.Abs(), q))
	}
	return unbounded
}

// marginFor sums the naked-option margin of both short legs.
func (s straddleLegs) marginFor(q int) decimal.Decimal {
	if s.long {
		return decimal.Zero
	}
	return nakedMargin(s.put, q).Add(nakedMargin(s.call, q))
}

func (s straddleLegs) breakevensWith(net decimal.Decimal) []decimal.Decimal {
	amount := net.Abs()
	return []decimal.Decimal{
		utils.Decimal2(s.put.Strike().Sub(amount)),
		utils.Decimal2(s.call.Strike().Add(amount)),
	}
}

func (s *Straddle) maxProfit(q int) decimal.NullDecimal { return s.maxProfitWith(s.netPrice(), q) }
func (s *Straddle) maxLoss(q int) decimal.NullDecimal   { return s.maxLossWith(s.netPrice(), q) }
func (s *Straddle) margin(q int) decimal.Decimal        { return s.marginFor(q) }

// Breakevens returns the strike less and plus the net premium.
func (s *Straddle) Breakevens() []decimal.Decimal { return s.breakevensWith(s.netPrice()) }

func (s *Strangle) maxProfit(q int) decimal.NullDecimal { return s.maxProfitWith(s.netPrice(), q) }
func (s *Strangle) maxLoss(q int) decimal.NullDecimal   { return s.maxLossWith(s.netPrice(), q) }
func (s *Strangle) margin(q int) decimal.Decimal        { return s.marginFor(q) }

// Breakevens returns the put strike less and the call strike plus the net premium.
func (s *Strangle) Breakevens() []decimal.Decimal { return s.breakevensWith(s.netPrice()) }
