package combo

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

var (
	unbounded = decimal.NullDecimal{}

	nakedSpotRate   = decimal.RequireFromString("0.20")
	minimumSpotRate = decimal.RequireFromString("0.10")
	minimumPerShare = decimal.NewFromInt(1)
)

func bounded(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// money scales a per-share amount to q units of 100 shares, at cent precision.
func money(perShare decimal.Decimal, q int) decimal.Decimal {
	return utils.Decimal2(perShare.Mul(utils.Multiplier()).Mul(decimal.NewFromInt(int64(q))))
}

// nakedMargin is the greater of 20% of spot less the out-of-the-money amount,
// 10% of spot, or $1, plus the premium, per share of a short option.
func nakedMargin(o *option.Option, contracts int) decimal.Decimal {
	spot := o.SpotPrice()
	premium := o.Price()

	var otm decimal.Decimal
	if o.Type() == models.Call {
		otm = o.Strike().Sub(spot)
	} else {
		otm = spot.Sub(o.Strike())
	}
	if otm.IsNegative() {
		otm = decimal.Zero
	}

	perShare := decimal.Max(
		nakedSpotRate.Mul(spot).Sub(otm).Add(premium),
		minimumSpotRate.Mul(spot).Add(premium),
		minimumPerShare.Add(premium),
	)
	return money(perShare, abs(contracts))
}

type payoffLeg struct {
	typ    models.OptionType
	strike decimal.Decimal
	ratio  int
}

// payoff is the expiration value of one unit per share of underlying, as a
// function of the underlying price. It is piecewise linear with kinks at the
// strikes, so its extremes over [0, ∞) lie at zero, at a strike, or in the
// right tail.
type payoff struct {
	legs       []payoffLeg
	net        decimal.Decimal
	shares     int
	shareBasis decimal.Decimal
}

// payoff returns the analysis for combinations whose legs share one expiration.
func (b *base) payoff() (payoff, bool) {
	exp := utils.DateOf(b.legs[0].opt.Expiration())
	p := payoff{net: b.netPrice()}
	for _, l := range b.legs {
		if !utils.DateOf(l.opt.Expiration()).Equal(exp) {
			return payoff{}, false
		}
		p.legs = append(p.legs, payoffLeg{typ: l.opt.Type(), strike: l.opt.Strike(), ratio: l.ratio})
	}
	return p, true
}

func (p payoff) value(spot decimal.Decimal) decimal.Decimal {
	v := p.net.Neg()
	for _, l := range p.legs {
		v = v.Add(option.Intrinsic(l.typ, l.strike, spot).Mul(decimal.NewFromInt(int64(l.ratio))))
	}
	if p.shares != 0 {
		v = v.Add(spot.Sub(p.shareBasis).Mul(decimal.NewFromInt(int64(p.shares))))
	}
	return v
}

// slope is the per-share change in value above the highest strike.
func (p payoff) slope() int {
	s := p.shares
	for _, l := range p.legs {
		if l.typ == models.Call {
			s += l.ratio
		}
	}
	return s
}

// points returns zero and every distinct strike in ascending order.
func (p payoff) points() []decimal.Decimal {
	pts := []decimal.Decimal{decimal.Zero}
	for _, l := range p.legs {
		pts = append(pts, l.strike)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].LessThan(pts[j]) })
	out := pts[:1]
	for _, x := range pts[1:] {
		if !x.Equal(out[len(out)-1]) {
			out = append(out, x)
		}
	}
	return out
}

func (p payoff) maxProfit(q int) decimal.NullDecimal {
	if p.slope() > 0 {
		return unbounded
	}
	best := p.value(decimal.Zero)
	for _, x := range p.points() {
		best = decimal.Max(best, p.value(x))
	}
	return bounded(money(best, q))
}

func (p payoff) maxLoss(q int) decimal.NullDecimal {
	if p.slope() < 0 {
		return unbounded
	}
	worst := p.value(decimal.Zero)
	for _, x := range p.points() {
		worst = decimal.Min(worst, p.value(x))
	}
	if worst.IsPositive() {
		return bounded(decimal.Zero)
	}
	return bounded(money(worst.Neg(), q))
}

// breakevens returns the underlying prices where the value crosses zero.
func (p payoff) breakevens() []decimal.Decimal {
	pts := p.points()
	var out []decimal.Decimal
	add := func(x decimal.Decimal) {
		x = utils.Decimal2(x)
		if len(out) == 0 || !out[len(out)-1].Equal(x) {
			out = append(out, x)
		}
	}

	for i := 0; i < len(pts); i++ {
		va := p.value(pts[i])
		if va.IsZero() {
			add(pts[i])
			continue
		}
		if i+1 == len(pts) {
			break
		}
		vb := p.value(pts[i+1])
		if !vb.IsZero() && va.Sign() != vb.Sign() {
			// linear between kinks
			add(pts[i].Add(va.Neg().Mul(pts[i+1].Sub(pts[i])).Div(vb.Sub(va))))
		}
	}

	last := pts[len(pts)-1]
	vl := p.value(last)
	if s := p.slope(); s != 0 && !vl.IsZero() && vl.Sign() != s/abs(s) {
		add(last.Sub(vl.Div(decimal.NewFromInt(int64(s)))))
	}
	return out
}
