package combo

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
)

// Ratio buys one strike and sells another of the same type and expiration in
// unequal sizes, for example one long call against two short calls.
type Ratio struct {
	*base
	long       *option.Option
	short      *option.Option
	longRatio  int
	shortRatio int
}

// NewRatio builds a ratio spread. It is LONG when it costs a net debit at
// construction and SHORT when it collects a credit.
func NewRatio(a, b Leg, opts ...Opt) (*Ratio, error) {
	fail := func(reason string) (*Ratio, error) {
		return nil, errors.NewCombinationError(string(TypeRatio), reason)
	}
	switch {
	case a.Option == nil || b.Option == nil:
		return fail("missing leg")
	case a.Option.Type() != b.Option.Type():
		return fail("legs must be the same option type")
	case !sameExpiration(a.Option, b.Option):
		return fail("legs must share an expiration")
	case a.Option.Strike().Equal(b.Option.Strike()):
		return fail("strikes must differ")
	case a.Quantity == 0 || b.Quantity == 0 || (a.Quantity > 0) == (b.Quantity > 0):
		return fail("one leg must be bought and the other sold")
	case abs(a.Quantity) == abs(b.Quantity):
		return fail("leg sizes must differ; use a vertical for equal sizes")
	}

	bs, err := newBase(TypeRatio, []Leg{a, b}, opts...)
	if err != nil {
		return nil, err
	}
	r := &Ratio{base: bs}
	for _, l := range bs.legs {
		if l.ratio > 0 {
			r.long, r.longRatio = l.opt, l.ratio
		} else {
			r.short, r.shortRatio = l.opt, -l.ratio
		}
	}
	if bs.Price().IsNegative() {
		bs.positionType = models.Short
	} else {
		bs.positionType = models.Long
	}
	bs.risk = r
	return r, nil
}

// LongLeg returns the bought option.
func (r *Ratio) LongLeg() *option.Option { return r.long }

// ShortLeg returns the sold option.
func (r *Ratio) ShortLeg() *option.Option { return r.short }

func (r *Ratio) maxProfit(q int) decimal.NullDecimal {
	p, _ := r.payoff()
	return p.maxProfit(q)
}

func (r *Ratio) maxLoss(q int) decimal.NullDecimal {
	p, _ := r.payoff()
	return p.maxLoss(q)
}

// margin covers what the long leg does not: the strike width on covered
// contracts when the sold strike is the riskier one, plus naked margin on
// any excess short contracts.
func (r *Ratio) margin(q int) decimal.Decimal {
	total := decimal.Zero
	covered := r.longRatio
	if r.shortRatio < covered {
		covered = r.shortRatio
	}
	width := r.long.Strike().Sub(r.short.Strike())
	if r.long.Type() == models.Put {
		width = width.Neg()
	}
	if width.IsPositive() {
		total = total.Add(money(width, covered*q))
	}
	if excess := r.shortRatio - r.longRatio; excess > 0 {
		total = total.Add(nakedMargin(r.short, excess*q))
	}
	return total
}
