package combo

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Butterfly is two wings around a body of twice their size, all one type and
// one expiration. A long butterfly buys the wings and sells the body.
type Butterfly struct {
	*base
	lower  *option.Option
	center *option.Option
	upper  *option.Option
	long   bool
}

// NewButterfly builds a butterfly with equally wide wings.
func NewButterfly(lower, center, upper Leg, opts ...Opt) (*Butterfly, error) {
	fail := func(reason string) (*Butterfly, error) {
		return nil, errors.NewCombinationError(string(TypeButterfly), reason)
	}
	if lower.Option == nil || center.Option == nil || upper.Option == nil {
		return fail("missing leg")
	}
	typ := lower.Option.Type()
	if center.Option.Type() != typ || upper.Option.Type() != typ {
		return fail("legs must be the same option type")
	}
	if !sameExpiration(lower.Option, center.Option, upper.Option) {
		return fail("legs must share an expiration")
	}
	if lower.Quantity == 0 || lower.Quantity != upper.Quantity || center.Quantity != -2*lower.Quantity {
		return fail("body must be twice the size of each wing and opposite in direction")
	}
	k1, k2, k3 := lower.Option.Strike(), center.Option.Strike(), upper.Option.Strike()
	if !k1.LessThan(k2) || !k2.LessThan(k3) {
		return fail("strikes must ascend from lower wing to upper wing")
	}
	if !k2.Sub(k1).Equal(k3.Sub(k2)) {
		return fail("wings must be equally wide")
	}

	bs, err := newBase(TypeButterfly, []Leg{lower, center, upper}, opts...)
	if err != nil {
		return nil, err
	}
	bf := &Butterfly{base: bs, lower: lower.Option, center: center.Option, upper: upper.Option, long: lower.Quantity > 0}
	if bf.long {
		bs.positionType = models.Long
	} else {
		bs.positionType = models.Short
	}
	bs.risk = bf
	return bf, nil
}

// WingWidth is the distance from the body to either wing.
func (bf *Butterfly) WingWidth() decimal.Decimal {
	return bf.center.Strike().Sub(bf.lower.Strike())
}

func (bf *Butterfly) maxProfit(q int) decimal.NullDecimal {
	amount := bf.netPrice().Abs()
	if bf.long {
		return bounded(money(bf.WingWidth().Sub(amount), q))
	}
	return bounded(money(amount, q))
}

func (bf *Butterfly) maxLoss(q int) decimal.NullDecimal {
	amount := bf.netPrice().Abs()
	if bf.long {
		return bounded(money(amount, q))
	}
	return bounded(money(bf.WingWidth().Sub(amount), q))
}

func (bf *Butterfly) margin(q int) decimal.Decimal {
	if bf.long {
		return decimal.Zero
	}
	return money(bf.WingWidth(), q)
}

// Breakevens returns the lower wing plus and the upper wing less the net premium.
func (bf *Butterfly) Breakevens() []decimal.Decimal {
	amount := bf.netPrice().Abs()
	return []decimal.Decimal{
		utils.Decimal2(bf.lower.Strike().Add(amount)),
		utils.Decimal2(bf.upper.Strike().Sub(amount)),
	}
}

// Condor is four options of one type and expiration at ascending strikes,
// with the outer two on one side and the inner two on the other. A long
// condor buys the outer strikes.
type Condor struct {
	*base
	long bool
}

// NewCondor builds a condor from four legs in any order.
func NewCondor(legs []Leg, opts ...Opt) (*Condor, error) {
	fail := func(reason string) (*Condor, error) {
		return nil, errors.NewCombinationError(string(TypeCondor), reason)
	}
	if len(legs) != 4 {
		return fail("requires four legs")
	}
	for _, l := range legs {
		if l.Option == nil {
			return fail("missing leg")
		}
	}
	sorted := make([]Leg, 4)
	copy(sorted, legs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Option.Strike().LessThan(sorted[j].Option.Strike()) })

	typ := sorted[0].Option.Type()
	for i, l := range sorted {
		if l.Option.Type() != typ {
			return fail("legs must be the same option type")
		}
		if i > 0 && !l.Option.Strike().GreaterThan(sorted[i-1].Option.Strike()) {
			return fail("strikes must all differ")
		}
	}
	if !sameExpiration(sorted[0].Option, sorted[1].Option, sorted[2].Option, sorted[3].Option) {
		return fail("legs must share an expiration")
	}
	q := sorted[0].Quantity
	if q == 0 || sorted[3].Quantity != q || sorted[1].Quantity != -q || sorted[2].Quantity != -q {
		return fail("outer legs must be equal and opposite to the inner legs")
	}

	bs, err := newBase(TypeCondor, sorted, opts...)
	if err != nil {
		return nil, err
	}
	c := &Condor{base: bs, long: q > 0}
	if c.long {
		bs.positionType = models.Long
	} else {
		bs.positionType = models.Short
	}
	bs.risk = c
	return c, nil
}

func (c *Condor) maxProfit(q int) decimal.NullDecimal {
	p, _ := c.payoff()
	return p.maxProfit(q)
}

func (c *Condor) maxLoss(q int) decimal.NullDecimal {
	p, _ := c.payoff()
	return p.maxLoss(q)
}

func (c *Condor) margin(q int) decimal.Decimal {
	if c.long {
		return decimal.Zero
	}
	return c.maxLoss(q).Decimal
}
