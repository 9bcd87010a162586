package combo

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

var (
	quoteTime  = time.Date(2024, 2, 1, 10, 0, 0, 0, utils.EasternLocation)
	expiration = time.Date(2024, 2, 16, 0, 0, 0, 0, utils.EasternLocation)
	farExpiry  = time.Date(2024, 3, 15, 0, 0, 0, 0, utils.EasternLocation)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func assertBounded(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid, "expected a bounded value, want %s", want)
	assertDecimal(t, want, got.Decimal)
}

type optSpec struct {
	typ    models.OptionType
	strike string
	price  string
	spot   string
	exp    time.Time
}

func newOpt(t *testing.T, s optSpec) *option.Option {
	t.Helper()
	if s.spot == "" {
		s.spot = "2000"
	}
	if s.exp.IsZero() {
		s.exp = expiration
	}
	price := dec(s.price)
	o, err := option.New(option.DefaultConfig(), models.Contract{
		OptionID:   fmt.Sprintf("SPX-%s-%s-%s", s.exp.Format("060102"), s.strike, s.typ),
		Symbol:     "SPX",
		Strike:     dec(s.strike),
		Expiration: s.exp,
		Type:       s.typ,
	}, models.Quote{Time: quoteTime, SpotPrice: dec(s.spot), Bid: price, Ask: price, Price: price})
	require.NoError(t, err)
	return o
}

func call(t *testing.T, strike, price string) *option.Option {
	return newOpt(t, optSpec{typ: models.Call, strike: strike, price: price})
}

func put(t *testing.T, strike, price string) *option.Option {
	return newOpt(t, optSpec{typ: models.Put, strike: strike, price: price})
}

func reprice(t *testing.T, o *option.Option, at time.Time, price string) {
	t.Helper()
	p := dec(price)
	require.NoError(t, o.Update(models.OptionRecord{Quote: models.Quote{
		Time: at, SpotPrice: o.SpotPrice(), Bid: p, Ask: p, Price: p,
	}}))
}

func intp(n int) *int { return &n }

func TestNewBase_Validation(t *testing.T) {
	c := call(t, "2000", "10")

	_, err := NewSingle(Leg{Option: nil, Quantity: 1})
	assert.ErrorIs(t, err, errors.ErrInvalidCombination)

	_, err = NewSingle(Leg{Option: c, Quantity: 0})
	assert.ErrorIs(t, err, errors.ErrInvalidCombination)

	_, err = NewRatio(Leg{Option: c, Quantity: 1}, Leg{Option: c, Quantity: -2})
	assert.ErrorIs(t, err, errors.ErrInvalidCombination)

	traded := call(t, "2010", "8")
	_, err = traded.Open(1, nil)
	require.NoError(t, err)
	_, err = NewSingle(Leg{Option: traded, Quantity: 1})
	assert.ErrorIs(t, err, errors.ErrInvalidCombination)
}

func TestPositionIDsAreUnique(t *testing.T) {
	a, err := NewSingle(Leg{Option: call(t, "2000", "10"), Quantity: 1})
	require.NoError(t, err)
	b, err := NewSingle(Leg{Option: call(t, "2000", "10"), Quantity: 1})
	require.NoError(t, err)
	assert.Greater(t, b.ID(), a.ID())
}

func TestLifecycle_OpenPartialCloseFullClose(t *testing.T) {
	long, short := call(t, "1950", "8.30"), call(t, "1960", "4.00")
	v, err := NewVertical(Leg{Option: long, Quantity: 1}, Leg{Option: short, Quantity: -1})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Quantity())
	assert.Equal(t, 0, v.RemainingQuantity())
	assert.False(t, v.IsOpen())

	require.NoError(t, v.Open(3, models.UserDefined{"entry": models.String("test")}))
	assert.Equal(t, 3, long.Quantity())
	assert.Equal(t, -3, short.Quantity())
	assert.Equal(t, 3, v.RemainingQuantity())
	assert.True(t, v.IsOpen())
	assert.True(t, v.Status().Has(option.TradeIsOpen))
	assertDecimal(t, "1290", v.TradeValue())
	tp, err := v.TradePrice()
	require.NoError(t, err)
	assertDecimal(t, "4.30", tp)

	opened, ok := v.OpenTime()
	require.True(t, ok)
	assert.Equal(t, quoteTime, opened)

	err = v.Open(1, nil)
	assert.ErrorIs(t, err, errors.ErrTradeAlreadyOpen)

	later := quoteTime.Add(24 * time.Hour)
	reprice(t, long, later, "12.00")
	reprice(t, short, later, "6.00")

	require.NoError(t, v.Close(intp(1), nil))
	assert.Equal(t, 2, v.RemainingQuantity())
	assert.True(t, v.Status().Has(option.TradeIsOpen|option.TradePartiallyClosed))
	assert.True(t, v.ClosedValue().Valid)

	err = v.Close(intp(3), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidQuantity)

	require.NoError(t, v.Close(nil, nil))
	assert.Equal(t, 0, v.RemainingQuantity())
	assert.True(t, v.Status().Has(option.TradeIsClosed))
	assert.False(t, v.IsOpen())
	assert.True(t, v.RequiredMargin().IsZero())

	// (6.00 - 4.30) x 100 x 3
	pnl, err := v.ProfitLoss()
	require.NoError(t, err)
	assertDecimal(t, "510", pnl)
	assertDecimal(t, "510", v.RealizedProfitLoss())

	closed := v.ClosedValue()
	require.True(t, closed.Valid)
	assertDecimal(t, "-1800", closed.Decimal)

	closedAt, ok := v.CloseTime()
	require.True(t, ok)
	assert.Equal(t, later, closedAt)

	err = v.Close(nil, nil)
	assert.ErrorIs(t, err, errors.ErrNoTradeOpen)

	bag := v.UserDefined()
	s, _ := bag["entry"].Str()
	assert.Equal(t, "test", s)
}

func TestOpen_ChecksEveryLegFirst(t *testing.T) {
	shared := call(t, "2000", "10")
	other := call(t, "2050", "5")

	first, err := NewSingle(Leg{Option: shared, Quantity: 1})
	require.NoError(t, err)
	second, err := NewVertical(Leg{Option: other, Quantity: -1}, Leg{Option: shared, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, first.Open(1, nil))
	err = second.Open(1, nil)
	assert.ErrorIs(t, err, errors.ErrTradeAlreadyOpen)

	_, traded := other.OpenInfo()
	assert.False(t, traded, "no leg opens when another leg cannot")
}

func TestUserDefined_FromConstructorThenOpenAndClose(t *testing.T) {
	v, err := NewVertical(
		Leg{Option: call(t, "2000", "20"), Quantity: 1},
		Leg{Option: call(t, "2050", "5"), Quantity: -1},
		WithUserDefined(models.UserDefined{"setup": models.String("breakout"), "stage": models.String("built")}),
	)
	require.NoError(t, err)
	assert.Equal(t, models.String("breakout"), v.UserDefined()["setup"])

	require.NoError(t, v.Open(1, models.UserDefined{"stage": models.String("opened")}))
	require.NoError(t, v.Close(nil, models.UserDefined{"exit": models.String("target")}))

	bag := v.UserDefined()
	assert.Len(t, bag, 3)
	assert.Equal(t, models.String("breakout"), bag["setup"])
	assert.Equal(t, models.String("opened"), bag["stage"])
	assert.Equal(t, models.String("target"), bag["exit"])

	ic, err := NewIronCondor([]Leg{
		{Option: put(t, "1900", "1.00"), Quantity: 1},
		{Option: put(t, "1925", "2.50"), Quantity: -1},
		{Option: call(t, "2050", "2.00"), Quantity: -1},
		{Option: call(t, "2075", "0.75"), Quantity: 1},
	}, WithUserDefined(models.UserDefined{"setup": models.String("range")}))
	require.NoError(t, err)
	assert.Equal(t, models.String("range"), ic.UserDefined()["setup"])
}

func TestOpen_ExpiredLegRefused(t *testing.T) {
	o, err := option.New(option.DefaultConfig(), models.Contract{
		OptionID: "SPX-240216-1900-PUT", Symbol: "SPX", Strike: dec("1900"), Expiration: expiration, Type: models.Put,
	}, models.Quote{
		Time:      time.Date(2024, 2, 16, 16, 20, 0, 0, utils.EasternLocation),
		SpotPrice: dec("2000"), Bid: dec("0.05"), Ask: dec("0.05"), Price: dec("0.05"),
	})
	require.NoError(t, err)
	live := put(t, "1950", "3")

	v, err := NewVertical(Leg{Option: live, Quantity: -1}, Leg{Option: o, Quantity: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, v.Open(1, nil), errors.ErrOptionExpired)
	_, traded := live.OpenInfo()
	assert.False(t, traded, "no leg opens when another has expired")
	assert.False(t, v.IsOpen())
}

func TestOpen_InvalidQuantity(t *testing.T) {
	s, err := NewSingle(Leg{Option: call(t, "2000", "10"), Quantity: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Open(0, nil), errors.ErrInvalidQuantity)
	assert.ErrorIs(t, s.Open(-1, nil), errors.ErrInvalidQuantity)
	assert.ErrorIs(t, s.Close(nil, nil), errors.ErrNoTradeOpen)
	_, err = s.TradePrice()
	assert.ErrorIs(t, err, errors.ErrNoTrade)
}

func TestAggregates_FeesAndValues(t *testing.T) {
	cfg := option.DefaultConfig()
	cfg.FeesEnabled = true

	mk := func(typ models.OptionType, strike, price string) *option.Option {
		p := dec(price)
		o, err := option.New(cfg, models.Contract{
			OptionID: "FEE-" + strike + string(typ), Symbol: "SPX", Strike: dec(strike), Expiration: expiration, Type: typ,
		}, models.Quote{Time: quoteTime, SpotPrice: dec("2000"), Bid: p, Ask: p, Price: p})
		require.NoError(t, err)
		return o
	}
	s, err := NewStrangle(Leg{Option: mk(models.Put, "1900", "5"), Quantity: -2}, Leg{Option: mk(models.Call, "2100", "4"), Quantity: -2})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Quantity())

	require.NoError(t, s.Open(2, nil))
	assertDecimal(t, "2", s.Fees())
	assertDecimal(t, "-1800", s.TradeValue())
	assertDecimal(t, "-1800", s.CurrentValue())
	assertDecimal(t, "-9", s.Price())

	unrealized, err := s.UnrealizedProfitLoss()
	require.NoError(t, err)
	assert.True(t, unrealized.IsZero())

	require.NoError(t, s.Close(nil, nil))
	assertDecimal(t, "4", s.Fees())
}

func TestDTE_UsesNearestExpiration(t *testing.T) {
	near := newOpt(t, optSpec{typ: models.Call, strike: "2000", price: "20"})
	far := newOpt(t, optSpec{typ: models.Call, strike: "2000", price: "35", exp: farExpiry})
	c, err := NewCalendar(Leg{Option: near, Quantity: -1}, Leg{Option: far, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 15, c.DTE())
}

func TestString(t *testing.T) {
	s, err := NewSingle(Leg{Option: put(t, "1900", "5"), Quantity: -2})
	require.NoError(t, err)
	assert.Contains(t, s.String(), "SINGLE")
	assert.Contains(t, s.String(), "SHORT")
	assert.Contains(t, s.String(), "-2 SPX")
}
