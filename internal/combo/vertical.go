package combo

import (
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Vertical is a debit or credit spread: one long and one short option of the
// same type and expiration at different strikes.
type Vertical struct {
	*base
	long  *option.Option
	short *option.Option
	debit bool
}

// NewVertical builds a vertical spread from two legs with opposite, equal quantities.
//
// Calls bought below the sold strike and puts bought above it are debit
// spreads and therefore LONG; the mirror images are credit spreads and SHORT.
func NewVertical(a, b Leg, opts ...Opt) (*Vertical, error) {
	if a.Option == nil || b.Option == nil {
		return nil, errors.NewCombinationError(string(TypeVertical), "missing leg")
	}
	if a.Option.Type() != b.Option.Type() {
		return nil, errors.NewCombinationError(string(TypeVertical), "legs must be the same option type")
	}
	if !sameExpiration(a.Option, b.Option) {
		return nil, errors.NewCombinationError(string(TypeVertical), "legs must share an expiration")
	}
	if a.Quantity+b.Quantity != 0 || a.Quantity == 0 {
		return nil, errors.NewCombinationError(string(TypeVertical), "leg quantities must be opposite and equal")
	}
	if a.Option.Strike().Equal(b.Option.Strike()) {
		return nil, errors.NewCombinationError(string(TypeVertical), "strikes must differ")
	}

	bs, err := newBase(TypeVertical, []Leg{a, b}, opts...)
	if err != nil {
		return nil, err
	}
	v := &Vertical{base: bs, long: a.Option, short: b.Option}
	if a.Quantity < 0 {
		v.long, v.short = b.Option, a.Option
	}
	if v.long.Type() == models.Call {
		v.debit = v.long.Strike().LessThan(v.short.Strike())
	} else {
		v.debit = v.long.Strike().GreaterThan(v.short.Strike())
	}
	if v.debit {
		bs.positionType = models.Long
	} else {
		bs.positionType = models.Short
	}
	bs.risk = v
	return v, nil
}

// LongLeg returns the bought option.
func (v *Vertical) LongLeg() *option.Option { return v.long }

// ShortLeg returns the sold option.
func (v *Vertical) ShortLeg() *option.Option { return v.short }

// IsDebit reports whether the spread is paid for on entry.
func (v *Vertical) IsDebit() bool { return v.debit }

// Width is the distance between the strikes.
func (v *Vertical) Width() decimal.Decimal {
	return v.long.Strike().Sub(v.short.Strike()).Abs()
}

// debitOrCredit is the net amount paid (debit) or received (credit) per share.
func (v *Vertical) debitOrCredit() decimal.Decimal {
	return v.netPrice().Abs()
}

func (v *Vertical) maxProfit(q int) decimal.NullDecimal {
	if v.debit {
		return bounded(money(v.Width().Sub(v.debitOrCredit()), q))
	}
	return bounded(money(v.debitOrCredit(), q))
}

func (v *Vertical) maxLoss(q int) decimal.NullDecimal {
	if v.debit {
		return bounded(money(v.debitOrCredit(), q))
	}
	return bounded(money(v.Width().Sub(v.debitOrCredit()), q))
}

func (v *Vertical) margin(q int) decimal.Decimal {
	if v.debit {
		return decimal.Zero
	}
	return money(v.Width(), q)
}

// Breakevens returns the single breakeven: the long strike moved by the debit,
// or the short strike moved by the credit.
func (v *Vertical) Breakevens() []decimal.Decimal {
	anchor := v.short.Strike()
	if v.debit {
		anchor = v.long.Strike()
	}
	amount := v.debitOrCredit()
	if v.long.Type() == models.Call {
		return []decimal.Decimal{utils.Decimal2(anchor.Add(amount))}
	}
	return []decimal.Decimal{utils.Decimal2(anchor.Sub(amount))}
}

func sameExpiration(opts ...*option.Option) bool {
	for _, o := range opts[1:] {
		if !utils.DateOf(o.Expiration()).Equal(utils.DateOf(opts[0].Expiration())) {
			return false
		}
	}
	return true
}
