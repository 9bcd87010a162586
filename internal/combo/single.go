package combo

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
)

// Single wraps exactly one option.
type Single struct {
	*base
	opt *option.Option
}

// NewSingle builds a single-leg position. A positive quantity is long.
func NewSingle(l Leg, opts ...Opt) (*Single, error) {
	b, err := newBase(TypeSingle, []Leg{l}, opts...)
	if err != nil {
		return nil, err
	}
	s := &Single{base: b, opt: l.Option}
	b.positionType = models.PositionTypeOf(l.Quantity)
	b.risk = s
	return s, nil
}

// Option returns the wrapped option.
func (s *Single) Option() *option.Option { return s.opt }

func (s *Single) premium() decimal.Decimal {
	return s.netPrice().Abs()
}

func (s *Single) maxProfit(q int) decimal.NullDecimal {
	switch {
	case s.positionType == models.Short:
		return bounded(money(s.premium(), q))
	case s.opt.Type() == models.Call:
		return unbounded
	}
	return bounded(money(floorZero(s.opt.Strike().Sub(s.premium())), q))
}

func (s *Single) maxLoss(q int) decimal.NullDecimal {
	switch {
	case s.positionType == models.Long:
		return bounded(money(s.premium(), q))
	case s.opt.Type() == models.Call:
		return unbounded
	}
	return bounded(money(floorZero(s.opt.Strike().Sub(s.premium())), q))
}

func (s *Single) margin(q int) decimal.Decimal {
	if s.positionType == models.Long {
		return decimal.Zero
	}
	return nakedMargin(s.opt, q)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
