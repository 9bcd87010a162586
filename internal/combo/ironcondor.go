package combo

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// IronCondor is a put vertical below a call vertical on one expiration.
//
// A short condor sells the inner strikes and buys the wings; a long condor
// buys the inner strikes and sells the wings.
type IronCondor struct {
	*base
	longCall  *option.Option
	shortCall *option.Option
	longPut   *option.Option
	shortPut  *option.Option
	short     bool
}

// NewIronCondor builds an iron condor from a long call, short call, long put
// and short put in any order.
func NewIronCondor(legs []Leg, opts ...Opt) (*IronCondor, error) {
	fail := func(reason string) (*IronCondor, error) {
		return nil, errors.NewCombinationError(string(TypeIronCondor), reason)
	}
	if len(legs) != 4 {
		return fail("requires four legs")
	}

	ic := &IronCondor{}
	unit := 0
	for _, l := range legs {
		if l.Option == nil || l.Quantity == 0 {
			return fail("legs need an option and a non-zero quantity")
		}
		if unit == 0 {
			unit = abs(l.Quantity)
		} else if abs(l.Quantity) != unit {
			return fail("leg quantities must be equal in size")
		}
		var slot **option.Option
		switch {
		case l.Option.Type() == models.Call && l.Quantity > 0:
			slot = &ic.longCall
		case l.Option.Type() == models.Call:
			slot = &ic.shortCall
		case l.Quantity > 0:
			slot = &ic.longPut
		default:
			slot = &ic.shortPut
		}
		if *slot != nil {
			return fail("requires one long call, one short call, one long put and one short put")
		}
		*slot = l.Option
	}

	if !sameExpiration(ic.longCall, ic.shortCall, ic.longPut, ic.shortPut) {
		return fail("all legs must share an expiration")
	}

	lc, sc := ic.longCall.Strike(), ic.shortCall.Strike()
	lp, sp := ic.longPut.Strike(), ic.shortPut.Strike()
	switch {
	case sc.LessThan(lc) && sp.GreaterThan(lp):
		ic.short = true
		if sp.GreaterThan(sc) {
			return fail("short put strike must not exceed short call strike")
		}
	case lc.LessThan(sc) && lp.GreaterThan(sp):
		if lp.GreaterThan(lc) {
			return fail("long put strike must not exceed long call strike")
		}
	default:
		return fail("strikes do not form a condor: call and put sides must both be short or both be long")
	}

	bs, err := newBase(TypeIronCondor, legs, opts...)
	if err != nil {
		return nil, err
	}
	ic.base = bs
	if ic.short {
		bs.positionType = models.Short
	} else {
		bs.positionType = models.Long
	}
	bs.risk = ic
	return ic, nil
}

// CallWidth is the distance between the call strikes.
func (ic *IronCondor) CallWidth() decimal.Decimal {
	return ic.longCall.Strike().Sub(ic.shortCall.Strike()).Abs()
}

// PutWidth is the distance between the put strikes.
func (ic *IronCondor) PutWidth() decimal.Decimal {
	return ic.longPut.Strike().Sub(ic.shortPut.Strike()).Abs()
}

func (ic *IronCondor) widest() decimal.Decimal {
	return decimal.Max(ic.CallWidth(), ic.PutWidth())
}

// ShortCall, ShortPut, LongCall and LongPut return the individual legs.
func (ic *IronCondor) ShortCall() *option.Option { return ic.shortCall }
func (ic *IronCondor) ShortPut() *option.Option  { return ic.shortPut }
func (ic *IronCondor) LongCall() *option.Option  { return ic.longCall }
func (ic *IronCondor) LongPut() *option.Option   { return ic.longPut }

func (ic *IronCondor) maxProfit(q int) decimal.NullDecimal {
	amount := ic.netPrice().Abs()
	if ic.short {
		return bounded(money(amount, q))
	}
	return bounded(money(ic.widest().Sub(amount), q))
}

func (ic *IronCondor) maxLoss(q int) decimal.NullDecimal {
	amount := ic.netPrice().Abs()
	if ic.short {
		return bounded(money(ic.widest().Sub(amount), q))
	}
	return bounded(money(amount, q))
}

func (ic *IronCondor) margin(q int) decimal.Decimal {
	if !ic.short {
		return decimal.Zero
	}
	return money(ic.widest(), q)
}

// Breakevens returns the lower and upper breakevens: the inner put strike less
// the net premium and the inner call strike plus it.
func (ic *IronCondor) Breakevens() []decimal.Decimal {
	amount := ic.netPrice().Abs()
	putInner, callInner := ic.shortPut.Strike(), ic.shortCall.Strike()
	if !ic.short {
		putInner, callInner = ic.longPut.Strike(), ic.longCall.Strike()
	}
	return []decimal.Decimal{
		utils.Decimal2(putInner.Sub(amount)),
		utils.Decimal2(callInner.Add(amount)),
	}
}
