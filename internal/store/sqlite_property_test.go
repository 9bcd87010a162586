package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Property: For any valid option record, saving it and reading back the
// snapshot at its quote time produces an equivalent record.
func TestProperty_RecordRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quotes_property.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 1, 2, 9, 30, 0, 0, utils.EasternLocation)
	seq := 0

	properties.Property("Record round-trip: save then snapshot produces equivalent data", prop.ForAll(
		func(strike int, isCall bool, bidCents, spreadCents int, delta float64, withGreeks bool, volume int64) bool {
			ctx := context.Background()
			seq++
			symbol := fmt.Sprintf("SYM%d", seq)

			typ := models.Put
			if isCall {
				typ = models.Call
			}
			bid := decimal.New(int64(bidCents), -2)
			ask := decimal.New(int64(bidCents+spreadCents), -2)
			rec := models.OptionRecord{
				Contract: models.Contract{
					OptionID:   fmt.Sprintf("%s-%d-%s", symbol, strike, typ),
					Symbol:     symbol,
					Strike:     decimal.NewFromInt(int64(strike)),
					Expiration: time.Date(2024, 2, 16, 0, 0, 0, 0, utils.EasternLocation),
					Type:       typ,
				},
				Quote: models.Quote{
					Time:      base.Add(time.Duration(seq) * time.Minute),
					SpotPrice: decimal.RequireFromString("2001.37"),
					Bid:       bid,
					Ask:       ask,
					Price:     bid.Add(ask).Div(decimal.NewFromInt(2)),
				},
			}
			if withGreeks {
				rec.Greeks.Delta = models.Float(delta)
				rec.Extended.Volume = models.Int(volume)
			}

			if err := store.SaveRecords(ctx, []models.OptionRecord{rec}); err != nil {
				t.Logf("Failed to save records: %v", err)
				return false
			}

			got, err := store.Snapshot(ctx, symbol, rec.Quote.Time)
			if err != nil || len(got) != 1 {
				t.Logf("Snapshot returned %d records, err %v", len(got), err)
				return false
			}
			r := got[0]

			if r.Contract.OptionID != rec.Contract.OptionID || r.Contract.Type != typ ||
				!r.Contract.Strike.Equal(rec.Contract.Strike) ||
				!r.Contract.Expiration.Equal(rec.Contract.Expiration) {
				return false
			}
			if !r.Quote.Time.Equal(rec.Quote.Time) || !r.Quote.Bid.Equal(bid) || !r.Quote.Ask.Equal(ask) ||
				!r.Quote.Price.Equal(rec.Quote.Price) || !r.Quote.SpotPrice.Equal(rec.Quote.SpotPrice) {
				return false
			}
			if !withGreeks {
				return r.Greeks.IsZero() && r.Extended.IsZero()
			}
			return r.Greeks.Delta != nil && *r.Greeks.Delta == delta &&
				r.Extended.Volume != nil && *r.Extended.Volume == volume && r.Greeks.Gamma == nil
		},
		gen.IntRange(100, 5000),
		gen.Bool(),
		gen.IntRange(0, 50000),
		gen.IntRange(0, 500),
		gen.Float64Range(-1, 1),
		gen.Bool(),
		gen.Int64Range(0, 1000000),
	))

	properties.TestingRun(t)
}
