package option

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

var (
	testExpiration = time.Date(2024, 1, 19, 0, 0, 0, 0, utils.EasternLocation)
	testQuoteTime  = time.Date(2024, 1, 10, 10, 0, 0, 0, utils.EasternLocation)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func testContract(typ models.OptionType, strike string) models.Contract {
	return models.Contract{
		OptionID:   "SPX-20240119-" + strike + string(typ),
		Symbol:     "SPX",
		Strike:     dec(strike),
		Expiration: testExpiration,
		Type:       typ,
	}
}

func testQuote(at time.Time, spot, bid, ask, price string) models.Quote {
	return models.Quote{
		Time:      at,
		SpotPrice: dec(spot),
		Bid:       dec(bid),
		Ask:       dec(ask),
		Price:     dec(price),
	}
}

func newTestOption(t *testing.T, cfg Config, typ models.OptionType, strike, price string) *Option {
	t.Helper()
	o, err := New(cfg, testContract(typ, strike), testQuote(testQuoteTime, "1900", price, price, price))
	require.NoError(t, err)
	return o
}

func record(o *Option, at time.Time, spot, bid, ask, price string) models.OptionRecord {
	return models.OptionRecord{Contract: o.Contract(), Quote: testQuote(at, spot, bid, ask, price)}
}

func intp(n int) *int { return &n }

func TestNew_Validation(t *testing.T) {
	cfg := DefaultConfig()
	good := testContract(models.Call, "1950")
	quote := testQuote(testQuoteTime, "1900", "12.70", "12.84", "12.77")

	tests := []struct {
		name     string
		contract func(c models.Contract) models.Contract
		quote    func(q models.Quote) models.Quote
	}{
		{"missing id", func(c models.Contract) models.Contract { c.OptionID = ""; return c }, nil},
		{"missing symbol", func(c models.Contract) models.Contract { c.Symbol = ""; return c }, nil},
		{"zero strike", func(c models.Contract) models.Contract { c.Strike = decimal.Zero; return c }, nil},
		{"missing expiration", func(c models.Contract) models.Contract { c.Expiration = time.Time{}; return c }, nil},
		{"bad type", func(c models.Contract) models.Contract { c.Type = "STRADDLE"; return c }, nil},
		{"missing quote time", nil, func(q models.Quote) models.Quote { q.Time = time.Time{}; return q }},
		{"negative bid", nil, func(q models.Quote) models.Quote { q.Bid = dec("-0.01"); return q }},
		{"quote after expiration", nil, func(q models.Quote) models.Quote {
			q.Time = testExpiration.AddDate(0, 0, 1)
			return q
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, q := good, quote
			if tt.contract != nil {
				c = tt.contract(c)
			}
			if tt.quote != nil {
				q = tt.quote(q)
			}
			o, err := New(cfg, c, q)
			assert.Nil(t, o)
			assert.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestNew_InitialState(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")

	assert.Equal(t, Initialized, o.Status())
	assert.Equal(t, 0, o.Quantity())
	assert.Equal(t, 9, o.DTE())
	_, opened := o.OpenInfo()
	assert.False(t, opened)
	assertDecimal(t, "0", o.TotalFees())
}

func TestNew_QuoteOnExpirationAfterCutoffIsExpired(t *testing.T) {
	at := time.Date(2024, 1, 19, 16, 20, 0, 0, utils.EasternLocation)
	o, err := New(DefaultConfig(), testContract(models.Put, "1900"), testQuote(at, "1910", "0", "0.05", "0.02"))
	require.NoError(t, err)
	assert.True(t, o.Status().Has(Initialized|Expired))

	var opened int
	o.Opened().Connect(func(OpenedEvent) { opened++ })
	_, err = o.Open(-1, nil)
	assert.ErrorIs(t, err, errors.ErrOptionExpired)
	assert.False(t, o.Status().Has(TradeIsOpen))
	assert.Zero(t, opened)
	assert.Zero(t, o.Quantity())
}

// Long 10 at 12.77 with a 0.50 fee: premium 12,770 and fees 5.00.
func TestOpen_LongPremiumAndFees(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeesEnabled = true
	o := newTestOption(t, cfg, models.Call, "1950", "12.77")

	var feeEvents []decimal.Decimal
	o.FeesIncurred().Connect(func(e FeesEvent) { feeEvents = append(feeEvents, e.Amount) })
	var opened []TradeOpenInfo
	o.Opened().Connect(func(e OpenedEvent) { opened = append(opened, e.Info) })

	info, err := o.Open(10, nil)
	require.NoError(t, err)

	assertDecimal(t, "12770", info.Premium)
	assertDecimal(t, "5", info.Fees)
	assertDecimal(t, "5", o.TotalFees())
	assert.Equal(t, 10, o.Quantity())
	assert.Equal(t, models.Long, o.PositionType())
	assert.True(t, o.Status().Has(TradeIsOpen))
	require.Len(t, feeEvents, 1)
	assertDecimal(t, "5", feeEvents[0])
	require.Len(t, opened, 1)
	assert.Equal(t, info, opened[0])
}

func TestOpen_Rejections(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")

	_, err := o.Open(0, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidQuantity)

	_, err = o.Open(1, nil)
	require.NoError(t, err)
	_, err = o.Open(1, nil)
	assert.ErrorIs(t, err, errors.ErrTradeAlreadyOpen)

	_, err = o.Close(nil, nil)
	require.NoError(t, err)
	_, err = o.Open(1, nil)
	assert.ErrorIs(t, err, errors.ErrTradeAlreadyOpen, "a closed option cannot be reopened")
}

func TestOpen_EntrySlippage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlippageOnEntry = true
	cfg.Slippage = dec("-0.05")

	long := newTestOption(t, cfg, models.Call, "1950", "12.77")
	info, err := long.Open(1, nil)
	require.NoError(t, err)
	assertDecimal(t, "12.82", info.Price)

	short := newTestOption(t, cfg, models.Put, "1850", "3.10")
	info, err = short.Open(-1, nil)
	require.NoError(t, err)
	assertDecimal(t, "3.05", info.Price)
	assertDecimal(t, "-305", info.Premium)
}

// Price moves to 10.77, closing 2 of 10 realizes -400 and leaves 8 open.
func TestClose_Partial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeesEnabled = true
	o := newTestOption(t, cfg, models.Call, "1950", "12.77")
	_, err := o.Open(10, nil)
	require.NoError(t, err)

	require.NoError(t, o.Update(record(o, testQuoteTime.Add(time.Hour), "1890", "10.70", "10.84", "10.77")))

	var closed []TradeCloseInfo
	o.Closed().Connect(func(e ClosedEvent) { closed = append(closed, e.Info) })

	info, err := o.Close(intp(2), nil)
	require.NoError(t, err)

	assertDecimal(t, "10.77", info.Price)
	assert.Equal(t, -2, info.Quantity)
	assertDecimal(t, "-400", info.ProfitLoss)
	assertDecimal(t, "-2154", info.Premium)
	assertDecimal(t, "1", info.Fees)
	assert.Equal(t, 8, o.Quantity())
	assert.True(t, o.Status().Has(TradeIsOpen|TradePartiallyClosed))
	assert.False(t, o.Status().Has(TradeIsClosed))
	assertDecimal(t, "6", o.TotalFees())
	require.Len(t, closed, 1)

	unrealized, err := o.UnrealizedProfitLoss()
	require.NoError(t, err)
	assertDecimal(t, "-1600", unrealized)
	total, err := o.ProfitLoss()
	require.NoError(t, err)
	assertDecimal(t, "-2000", total)
}

func TestClose_FullShortProfit(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Put, "1850", "3.00")
	_, err := o.Open(-5, nil)
	require.NoError(t, err)
	require.NoError(t, o.Update(record(o, testQuoteTime.Add(24*time.Hour), "1920", "0.95", "1.05", "1.00")))

	info, err := o.Close(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, info.Quantity)
	assertDecimal(t, "1000", info.ProfitLoss)
	assertDecimal(t, "0.6667", info.ProfitLossPercent)
	assert.Equal(t, 0, o.Quantity())
	assert.True(t, o.Status().Has(TradeIsClosed))
	assert.False(t, o.Status().Has(TradeIsOpen))

	pct, err := o.UnrealizedProfitLossPercent()
	require.NoError(t, err)
	assert.True(t, pct.IsZero())
	pct, err = o.ProfitLossPercent()
	require.NoError(t, err)
	assert.True(t, pct.IsZero())
}

func TestClose_Rejections(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")

	_, err := o.Close(nil, nil)
	assert.ErrorIs(t, err, errors.ErrNoTradeOpen)

	_, err = o.Open(3, nil)
	require.NoError(t, err)

	_, err = o.Close(intp(4), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidQuantity)
	_, err = o.Close(intp(0), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidQuantity)
	_, err = o.Close(intp(-1), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidQuantity)
	assert.Equal(t, 3, o.Quantity())

	_, err = o.Close(nil, nil)
	require.NoError(t, err)
	_, err = o.Close(intp(1), nil)
	assert.ErrorIs(t, err, errors.ErrNoTradeOpen)
}

func TestClose_ExitSlippageSkippedWhenExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlippageOnExit = true
	cfg.Slippage = dec("-0.10")

	o := newTestOption(t, cfg, models.Call, "1950", "5.00")
	_, err := o.Open(1, nil)
	require.NoError(t, err)

	price, err := o.ClosingPrice()
	require.NoError(t, err)
	assertDecimal(t, "5", price)

	require.NoError(t, o.Update(record(o, testExpiration.Add(16*time.Hour+30*time.Minute), "1960", "9.90", "10.10", "10.00")))
	require.True(t, o.IsExpired())

	info, err := o.Close(nil, nil)
	require.NoError(t, err)
	assertDecimal(t, "10", info.Price)
}

func TestAggregateCloseInfo_WeightedAverage(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "10.00")
	_, err := o.Open(10, nil)
	require.NoError(t, err)

	steps := []struct {
		price string
		qty   int
	}{
		{"11.00", 2},
		{"12.00", 3},
		{"9.50", 5},
	}
	at := testQuoteTime
	for _, s := range steps {
		at = at.Add(time.Hour)
		require.NoError(t, o.Update(record(o, at, "1950", s.price, s.price, s.price)))
		_, err := o.Close(intp(s.qty), nil)
		require.NoError(t, err)
	}

	agg, ok := o.AggregateCloseInfo()
	require.True(t, ok)
	// (11×2 + 12×3 + 9.5×5) / 10
	assertDecimal(t, "10.55", agg.Price)
	assert.Equal(t, -10, agg.Quantity)
	assertDecimal(t, "550", agg.ProfitLoss)
	assertDecimal(t, "0.055", agg.ProfitLossPercent)
	assert.Equal(t, at, agg.Date)
	assert.Len(t, o.CloseInfos(), 3)
	assertDecimal(t, "550", o.RealizedProfitLoss())
}

// Past expiration a call with spot below strike settles at zero whatever the last price.
func TestClosingPrice_ExpiredOTMCallIsZero(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "3.20")
	_, err := o.Open(1, nil)
	require.NoError(t, err)

	require.NoError(t, o.Update(record(o, testExpiration.Add(16*time.Hour+15*time.Minute), "1940", "1.10", "1.30", "1.20")))
	require.True(t, o.IsExpired())

	price, err := o.ClosingPrice()
	require.NoError(t, err)
	assert.True(t, price.IsZero())
	assertDecimal(t, "1.2", o.Price())
}

func TestClosingPrice_ExpiredITMPutIsIntrinsic(t *testing.T) {
	o, err := New(DefaultConfig(), testContract(models.Put, "1900"), testQuote(testQuoteTime, "1880", "24.00", "24.40", "24.20"))
	require.NoError(t, err)
	_, err = o.Open(-1, nil)
	require.NoError(t, err)

	require.NoError(t, o.Next(testExpiration.AddDate(0, 0, 1)))
	require.True(t, o.IsExpired())
	assert.Equal(t, testQuoteTime, o.QuoteTime(), "quote after expiration date is not applied")

	require.NoError(t, o.Update(record(o, testExpiration.AddDate(0, 0, 2), "1800", "0", "0", "0")))
	price, err := o.ClosingPrice()
	require.NoError(t, err)
	assertDecimal(t, "20", price)
}

// A short with no bid buys back at the ask.
func TestClosingPrice_ZeroBid(t *testing.T) {
	short, err := New(DefaultConfig(), testContract(models.Call, "2000"), testQuote(testQuoteTime, "1900", "11.00", "11.20", "11.10"))
	require.NoError(t, err)
	_, err = short.Open(-1, nil)
	require.NoError(t, err)
	require.NoError(t, short.Update(record(short, testQuoteTime.Add(time.Minute), "1900", "0", "10.90", "5.45")))

	price, err := short.ClosingPrice()
	require.NoError(t, err)
	assertDecimal(t, "10.90", price)

	long, err := New(DefaultConfig(), testContract(models.Call, "2000"), testQuote(testQuoteTime, "1900", "11.00", "11.20", "11.10"))
	require.NoError(t, err)
	_, err = long.Open(1, nil)
	require.NoError(t, err)
	require.NoError(t, long.Update(record(long, testQuoteTime.Add(time.Minute), "1900", "0", "10.90", "5.45")))

	price, err = long.ClosingPrice()
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestClosingPrice_NeverTraded(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")
	_, err := o.ClosingPrice()
	assert.ErrorIs(t, err, errors.ErrNoTrade)
	_, err = o.UnrealizedProfitLoss()
	assert.ErrorIs(t, err, errors.ErrNoTrade)
	_, err = o.ProfitLoss()
	assert.ErrorIs(t, err, errors.ErrNoTrade)
}

func TestUpdate_ExpirationCutoff(t *testing.T) {
	tests := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{"day before", testExpiration.Add(-8 * time.Hour), false},
		{"expiration day before cutoff", testExpiration.Add(16*time.Hour + 14*time.Minute), false},
		{"expiration day at cutoff", testExpiration.Add(16*time.Hour + 15*time.Minute), true},
		{"expiration day after cutoff", testExpiration.Add(17 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")
			fired := 0
			o.Expired().Connect(func(ExpiredEvent) { fired++ })

			require.NoError(t, o.Update(record(o, tt.at, "1950", "1.00", "1.10", "1.05")))
			assert.Equal(t, tt.expired, o.IsExpired())
			assertDecimal(t, "1.05", o.Price())
			if tt.expired {
				assert.Equal(t, 1, fired)
			} else {
				assert.Equal(t, 0, fired)
			}
		})
	}
}

func TestUpdate_FrozenAfterExpiry(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")
	fired := 0
	o.Expired().Connect(func(ExpiredEvent) { fired++ })

	require.NoError(t, o.Update(record(o, testExpiration.Add(16*time.Hour+30*time.Minute), "1960", "10", "10", "10")))
	require.NoError(t, o.Update(record(o, testExpiration.Add(16*time.Hour+45*time.Minute), "1990", "40", "40", "40")))

	assertDecimal(t, "10", o.Price())
	assert.Equal(t, 1, fired)
}

func TestUpdate_Rejections(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")

	err := o.Update(record(o, testQuoteTime.Add(-time.Minute), "1900", "1", "1", "1"))
	assert.ErrorIs(t, err, errors.ErrNonMonotonicUpdate)

	err = o.Update(record(o, time.Time{}, "1900", "1", "1", "1"))
	assert.ErrorIs(t, err, errors.ErrValidation)

	other := record(o, testQuoteTime.Add(time.Minute), "1900", "1", "1", "1")
	other.Contract.OptionID = "SOMETHING-ELSE"
	assert.ErrorIs(t, o.Update(other), errors.ErrValidation)

	assert.NoError(t, o.Update(record(o, testQuoteTime, "1901", "12.70", "12.90", "12.80")), "same time re-quote")
	assertDecimal(t, "12.80", o.Price())
}

func TestUpdate_ReplacesGreeksWholesale(t *testing.T) {
	o, err := New(DefaultConfig(), testContract(models.Call, "1950"), testQuote(testQuoteTime, "1900", "1", "1", "1"),
		WithGreeks(models.Greeks{Delta: models.Float(0.3), Gamma: models.Float(0.01)}))
	require.NoError(t, err)

	rec := record(o, testQuoteTime.Add(time.Minute), "1900", "1", "1", "1")
	rec.Greeks = models.Greeks{Delta: models.Float(0.35)}
	require.NoError(t, o.Update(rec))

	require.NotNil(t, o.Greeks().Delta)
	assert.InDelta(t, 0.35, *o.Greeks().Delta, 1e-12)
	assert.Nil(t, o.Greeks().Gamma)
}

func TestNext_ConsumesMatchingUpdates(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")
	t1 := testQuoteTime.Add(time.Hour)
	t2 := testQuoteTime.Add(2 * time.Hour)
	t3 := testQuoteTime.Add(3 * time.Hour)
	o.SetUpdates([]models.OptionRecord{
		record(o, t3, "1900", "3", "3", "3"),
		record(o, t1, "1900", "1", "1", "1"),
	})
	assert.Equal(t, 2, o.PendingUpdates())

	require.NoError(t, o.Next(t1))
	assertDecimal(t, "1", o.Price())

	// No record for t2: silently skipped.
	require.NoError(t, o.Next(t2))
	assertDecimal(t, "1", o.Price())
	assert.Equal(t, t1, o.QuoteTime())

	require.NoError(t, o.Next(t3))
	assertDecimal(t, "3", o.Price())
	assert.Equal(t, 0, o.PendingUpdates())
}

func TestNext_DropsStaleRecordsAndExpiresOnClock(t *testing.T) {
	o := newTestOption(t, DefaultConfig(), models.Call, "1950", "12.77")
	o.AppendUpdates(record(o, testQuoteTime.Add(time.Hour), "1900", "1", "1", "1"))

	require.NoError(t, o.Next(testQuoteTime.Add(2*time.Hour)))
	assert.Equal(t, 0, o.PendingUpdates())
	assertDecimal(t, "12.77", o.Price())

	require.NoError(t, o.Next(testExpiration.Add(16*time.Hour+15*time.Minute)))
	assert.True(t, o.IsExpired())
}

func TestMoneyness(t *testing.T) {
	call := newTestOption(t, DefaultConfig(), models.Call, "1850", "55")
	itm, ok := call.ITM()
	assert.True(t, ok)
	assert.True(t, itm)
	otm, ok := call.OTM()
	assert.True(t, ok)
	assert.False(t, otm)

	put := newTestOption(t, DefaultConfig(), models.Put, "1850", "2")
	itm, ok = put.ITM()
	assert.True(t, ok)
	assert.False(t, itm)

	noSpot, err := New(DefaultConfig(), testContract(models.Call, "1850"), testQuote(testQuoteTime, "0", "1", "1", "1"))
	require.NoError(t, err)
	_, ok = noSpot.ITM()
	assert.False(t, ok)
	_, ok = noSpot.OTM()
	assert.False(t, ok)
}

func TestUserDefined_Merged(t *testing.T) {
	o, err := New(DefaultConfig(), testContract(models.Call, "1950"), testQuote(testQuoteTime, "1900", "1", "1", "1"),
		WithUserDefined(models.UserDefined{"strategy": models.String("test")}))
	require.NoError(t, err)

	_, err = o.Open(1, models.UserDefined{"entry_reason": models.String("signal")})
	require.NoError(t, err)
	_, err = o.Close(nil, models.UserDefined{"exit_reason": models.Number(dec("2"))})
	require.NoError(t, err)

	bag := o.UserDefined()
	assert.Len(t, bag, 3)
	s, _ := bag["entry_reason"].Str()
	assert.Equal(t, "signal", s)
	n, _ := bag["exit_reason"].Num()
	assertDecimal(t, "2", n)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "NONE", Status(0).String())
	assert.Equal(t, "INITIALIZED|TRADE_IS_OPEN|EXPIRED", (Initialized | TradeIsOpen | Expired).String())
	assert.True(t, (TradeIsOpen | TradePartiallyClosed).Has(TradeIsOpen))
	assert.False(t, TradeIsOpen.Without(TradeIsOpen).Has(TradeIsOpen))
}
