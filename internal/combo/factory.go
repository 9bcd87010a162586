package combo

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/chain"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
)

// The Get* builders locate legs in a chain snapshot and construct the
// combination. A strike or delta with no match returns an error matching
// errors.ErrNotFound so a strategy can skip the trade; several matches return
// errors.ErrAmbiguous.

// GetSingle builds a single-option position. A negative quantity is short.
func GetSingle(ch *chain.Chain, expiration time.Time, typ models.OptionType, strike decimal.Decimal, quantity int) (*Single, error) {
	o, err := ch.Find(expiration, typ, strike)
	if err != nil {
		return nil, err
	}
	return NewSingle(Leg{Option: o, Quantity: quantity})
}

// GetSingleByDelta builds a single-option position on the strike nearest delta.
func GetSingleByDelta(ch *chain.Chain, expiration time.Time, typ models.OptionType, delta float64, quantity int) (*Single, error) {
	o, err := ch.NearestDelta(expiration, typ, delta)
	if err != nil {
		return nil, err
	}
	return NewSingle(Leg{Option: o, Quantity: quantity})
}

// GetVertical buys longStrike and sells shortStrike, quantity contracts each.
func GetVertical(ch *chain.Chain, expiration time.Time, typ models.OptionType, longStrike, shortStrike decimal.Decimal, quantity int) (*Vertical, error) {
	if quantity <= 0 {
		return nil, errors.NewCombinationError(string(TypeVertical), "quantity must be positive")
	}
	long, short, err := findPair(ch, expiration, typ, longStrike, typ, shortStrike)
	if err != nil {
		return nil, err
	}
	return NewVertical(Leg{Option: long, Quantity: quantity}, Leg{Option: short, Quantity: -quantity})
}

// GetStraddle builds a straddle at strike. A negative quantity is short.
func GetStraddle(ch *chain.Chain, expiration time.Time, strike decimal.Decimal, quantity int) (*Straddle, error) {
	put, call, err := findPair(ch, expiration, models.Put, strike, models.Call, strike)
	if err != nil {
		return nil, err
	}
	return NewStraddle(Leg{Option: put, Quantity: quantity}, Leg{Option: call, Quantity: quantity})
}

// GetStrangle builds a strangle. A negative quantity is short.
func GetStrangle(ch *chain.Chain, expiration time.Time, putStrike, callStrike decimal.Decimal, quantity int) (*Strangle, error) {
	put, call, err := findPair(ch, expiration, models.Put, putStrike, models.Call, callStrike)
	if err != nil {
		return nil, err
	}
	return NewStrangle(Leg{Option: put, Quantity: quantity}, Leg{Option: call, Quantity: quantity})
}

// GetStrangleByDelta builds a strangle on the put and call nearest the given
// deltas. Put deltas are negative.
func GetStrangleByDelta(ch *chain.Chain, expiration time.Time, putDelta, callDelta float64, quantity int) (*Strangle, error) {
	put, err := ch.NearestDelta(expiration, models.Put, putDelta)
	if err != nil {
		return nil, err
	}
	call, err := ch.NearestDelta(expiration, models.Call, callDelta)
	if err != nil {
		return nil, err
	}
	return NewStrangle(Leg{Option: put, Quantity: quantity}, Leg{Option: call, Quantity: quantity})
}

// GetIronCondor builds an iron condor from four strikes in ascending order.
// A positive quantity sells the inner strikes (short condor) and a negative
// one buys them.
func GetIronCondor(ch *chain.Chain, expiration time.Time, lowerPut, upperPut, lowerCall, upperCall decimal.Decimal, quantity int) (*IronCondor, error) {
	if quantity == 0 {
		return nil, errors.NewCombinationError(string(TypeIronCondor), "quantity must be non-zero")
	}
	lp, up, err := findPair(ch, expiration, models.Put, lowerPut, models.Put, upperPut)
	if err != nil {
		return nil, err
	}
	lc, uc, err := findPair(ch, expiration, models.Call, lowerCall, models.Call, upperCall)
	if err != nil {
		return nil, err
	}
	return NewIronCondor([]Leg{
		Leg{Option: lp, Quantity: quantity},
		Leg{Option: up, Quantity: -quantity},
		Leg{Option: lc, Quantity: -quantity},
		Leg{Option: uc, Quantity: quantity},
	})
}

// GetIronCondorByDelta sells the put and call nearest the given deltas and
// buys wings width away from each. quantity counts condors sold.
func GetIronCondorByDelta(ch *chain.Chain, expiration time.Time, putDelta, callDelta float64, width decimal.Decimal, quantity int) (*IronCondor, error) {
	shortPut, err := ch.NearestDelta(expiration, models.Put, putDelta)
	if err != nil {
		return nil, err
	}
	shortCall, err := ch.NearestDelta(expiration, models.Call, callDelta)
	if err != nil {
		return nil, err
	}
	return GetIronCondor(ch, expiration,
		shortPut.Strike().Sub(width), shortPut.Strike(),
		shortCall.Strike(), shortCall.Strike().Add(width),
		quantity)
}

// GetButterfly builds a butterfly centred on center with wings width away.
// A positive quantity buys the wings.
func GetButterfly(ch *chain.Chain, expiration time.Time, typ models.OptionType, center, width decimal.Decimal, quantity int) (*Butterfly, error) {
	lower, err := ch.Find(expiration, typ, center.Sub(width))
	if err != nil {
		return nil, err
	}
	mid, err := ch.Find(expiration, typ, center)
	if err != nil {
		return nil, err
	}
	upper, err := ch.Find(expiration, typ, center.Add(width))
	if err != nil {
		return nil, err
	}
	return NewButterfly(
		Leg{Option: lower, Quantity: quantity},
		Leg{Option: mid, Quantity: -2 * quantity},
		Leg{Option: upper, Quantity: quantity},
	)
}

// GetCondor builds a condor on four ascending strikes. A positive quantity
// buys the outer strikes.
func GetCondor(ch *chain.Chain, expiration time.Time, typ models.OptionType, strikes [4]decimal.Decimal, quantity int) (*Condor, error) {
	legs := make([]Leg, 4)
	for i, k := range strikes {
		o, err := ch.Find(expiration, typ, k)
		if err != nil {
			return nil, err
		}
		q := quantity
		if i == 1 || i == 2 {
			q = -quantity
		}
		legs[i] = Leg{Option: o, Quantity: q}
	}
	return NewCondor(legs)
}

// GetCalendar sells near and buys far at one strike. A negative quantity
// reverses the directions.
func GetCalendar(ch *chain.Chain, typ models.OptionType, strike decimal.Decimal, near, far time.Time, quantity int) (*Calendar, error) {
	n, err := ch.Find(near, typ, strike)
	if err != nil {
		return nil, err
	}
	f, err := ch.Find(far, typ, strike)
	if err != nil {
		return nil, err
	}
	return NewCalendar(Leg{Option: n, Quantity: -quantity}, Leg{Option: f, Quantity: quantity})
}

// GetDiagonal sells nearStrike on the near expiration and buys farStrike on
// the far one. A negative quantity reverses the directions.
func GetDiagonal(ch *chain.Chain, typ models.OptionType, near time.Time, nearStrike decimal.Decimal, far time.Time, farStrike decimal.Decimal, quantity int) (*Diagonal, error) {
	n, err := ch.Find(near, typ, nearStrike)
	if err != nil {
		return nil, err
	}
	f, err := ch.Find(far, typ, farStrike)
	if err != nil {
		return nil, err
	}
	return NewDiagonal(Leg{Option: n, Quantity: -quantity}, Leg{Option: f, Quantity: quantity})
}

// GetCollar buys putStrike and sells callStrike, quantity contracts each.
func GetCollar(ch *chain.Chain, expiration time.Time, putStrike, callStrike decimal.Decimal, quantity int) (*Collar, error) {
	put, call, err := findPair(ch, expiration, models.Put, putStrike, models.Call, callStrike)
	if err != nil {
		return nil, err
	}
	return NewCollar(Leg{Option: put, Quantity: quantity}, Leg{Option: call, Quantity: -quantity})
}

// GetRatio buys longQuantity at longStrike and sells shortQuantity at shortStrike.
func GetRatio(ch *chain.Chain, expiration time.Time, typ models.OptionType, longStrike decimal.Decimal, longQuantity int, shortStrike decimal.Decimal, shortQuantity int) (*Ratio, error) {
	long, short, err := findPair(ch, expiration, typ, longStrike, typ, shortStrike)
	if err != nil {
		return nil, err
	}
	return NewRatio(Leg{Option: long, Quantity: abs(longQuantity)}, Leg{Option: short, Quantity: -abs(shortQuantity)})
}

func findPair(ch *chain.Chain, expiration time.Time, typA models.OptionType, strikeA decimal.Decimal, typB models.OptionType, strikeB decimal.Decimal) (*option.Option, *option.Option, error) {
	a, err := ch.Find(expiration, typA, strikeA)
	if err != nil {
		return nil, nil, err
	}
	b, err := ch.Find(expiration, typB, strikeB)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
