package combo

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
)

// Collar protects 100 shares per unit with a bought put and finances it with
// a sold call above. The shares are not held by the position; its metrics
// assume they were bought at the underlying price when the collar opened.
type Collar struct {
	*base
	put  *option.Option
	call *option.Option
}

// NewCollar builds a collar from a long put and a short call.
func NewCollar(put, call Leg, opts ...Opt) (*Collar, error) {
	fail := func(reason string) (*Collar, error) {
		return nil, errors.NewCombinationError(string(TypeCollar), reason)
	}
	switch {
	case put.Option == nil || call.Option == nil:
		return fail("missing leg")
	case put.Option.Type() != models.Put || call.Option.Type() != models.Call:
		return fail("requires one put and one call")
	case !sameExpiration(put.Option, call.Option):
		return fail("legs must share an expiration")
	case put.Quantity <= 0 || call.Quantity != -put.Quantity:
		return fail("put must be bought and call sold in equal size")
	case !put.Option.Strike().LessThan(call.Option.Strike()):
		return fail("put strike must be below call strike")
	}

	bs, err := newBase(TypeCollar, []Leg{put, call}, opts...)
	if err != nil {
		return nil, err
	}
	c := &Collar{base: bs, put: put.Option, call: call.Option}
	bs.positionType = models.Long
	bs.risk = c
	return c, nil
}

// ShareBasis is the underlying price the covered shares are valued at.
func (c *Collar) ShareBasis() decimal.Decimal {
	if info, ok := c.put.OpenInfo(); ok {
		return info.SpotPrice
	}
	return c.put.SpotPrice()
}

func (c *Collar) payoffWithShares() payoff {
	p, _ := c.payoff()
	p.shares = 1
	p.shareBasis = c.ShareBasis()
	return p
}

func (c *Collar) maxProfit(q int) decimal.NullDecimal {
	return c.payoffWithShares().maxProfit(q)
}

func (c *Collar) maxLoss(q int) decimal.NullDecimal {
	return c.payoffWithShares().maxLoss(q)
}

func (c *Collar) margin(int) decimal.Decimal {
	return decimal.Zero
}

// Breakevens returns the share basis plus the net option cost.
func (c *Collar) Breakevens() []decimal.Decimal {
	return c.payoffWithShares().breakevens()
}
