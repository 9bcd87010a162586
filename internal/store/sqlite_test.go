package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

const sampleCSV = `option_id,symbol,expiration,strike,type,quote_datetime,spot,bid,ask,price,delta,gamma,theta,vega,rho,iv,volume,open_interest
SPX-20240216-2000-CALL,SPX,2024-02-16,2000,CALL,2024-01-02 09:31:00,2001.50,24.80,25.20,,0.52,0.01,-0.8,1.2,0.3,0.18,1500,12000
SPX-20240216-2000-PUT,SPX,2024-02-16,2000,P,2024-01-02 09:31:00,2001.50,23.00,23.40,23.25,-0.48,,,,,,,
,SPX,2024-02-16,2050,c,2024-01-02 09:32:00,2002.00,8.00,8.40,8.10,,,,,,,,
SPX-20240216-2000-CALL,SPX,2024-02-16,2000,CALL,2024-01-02T09:33:00-05:00,2003.00,26.00,26.40,26.20,,,,,,,,
`

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 2, hour, min, 0, 0, utils.EasternLocation)
}

func TestParseCSV(t *testing.T) {
	records, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 4)

	call := records[0]
	assert.Equal(t, "SPX-20240216-2000-CALL", call.Contract.OptionID)
	assert.Equal(t, models.Call, call.Contract.Type)
	assert.True(t, call.Quote.Price.Equal(decimal.RequireFromString("25")), "blank price is the mid")
	assert.True(t, call.Quote.Time.Equal(at(9, 31)))
	require.NotNil(t, call.Greeks.Delta)
	assert.Equal(t, 0.52, *call.Greeks.Delta)
	require.NotNil(t, call.Extended.OpenInterest)
	assert.Equal(t, int64(12000), *call.Extended.OpenInterest)

	put := records[1]
	assert.Equal(t, models.Put, put.Contract.Type)
	assert.True(t, put.Quote.Price.Equal(decimal.RequireFromString("23.25")))
	assert.Nil(t, put.Greeks.Gamma)
	assert.True(t, put.Extended.IsZero())

	assert.Equal(t, "SPX-20240216-2050-CALL", records[2].Contract.OptionID)
	assert.True(t, records[3].Quote.Time.Equal(at(9, 33)))
}

func TestParseCSV_Rejects(t *testing.T) {
	header := "option_id,symbol,expiration,strike,type,quote_datetime,spot,bid,ask,price\n"
	tests := []struct {
		name string
		row  string
	}{
		{"missing symbol", "X,,2024-02-16,2000,CALL,2024-01-02 09:31:00,2000,1,2,\n"},
		{"bad type", "X,SPX,2024-02-16,2000,STRADDLE,2024-01-02 09:31:00,2000,1,2,\n"},
		{"bad strike", "X,SPX,2024-02-16,abc,CALL,2024-01-02 09:31:00,2000,1,2,\n"},
		{"bad time", "X,SPX,2024-02-16,2000,CALL,yesterday,2000,1,2,\n"},
		{"bad expiration", "X,SPX,16/02/2024,2000,CALL,2024-01-02 09:31:00,2000,1,2,\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(header + tt.row))
			assert.Error(t, err)
		})
	}
}

func TestImportAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.ImportCSV(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, s.GetLastImport("SPX").Equal(at(9, 33)))

	symbols, err := s.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPX"}, symbols)

	times, err := s.QuoteTimes(ctx, "SPX", at(9, 0), at(9, 32))
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.True(t, times[0].Equal(at(9, 31)))
	assert.True(t, times[1].Equal(at(9, 32)))
	assert.Equal(t, utils.EasternLocation, times[0].Location())

	all, err := s.QuoteTimes(ctx, "SPX", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	snap, err := s.Snapshot(ctx, "SPX", at(9, 31))
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, models.Call, snap[0].Contract.Type)
	assert.Equal(t, models.Put, snap[1].Contract.Type)

	updates, err := s.Updates(ctx, "SPX-20240216-2000-CALL", at(9, 31), time.Time{})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Quote.Price.Equal(decimal.RequireFromString("26.20")))

	updates, err = s.Updates(ctx, "SPX-20240216-2000-CALL", at(9, 30), at(9, 32))
	require.NoError(t, err)
	assert.Len(t, updates, 1)

	empty, err := s.Snapshot(ctx, "NDX", at(9, 31))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestImportCSV_ReplacesSameQuote(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.ImportCSV(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	_, err = s.ImportCSV(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "SPX", at(9, 31))
	require.NoError(t, err)
	assert.Len(t, snap, 2)
}

func TestImportCSV_BadRowStoresNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bad := sampleCSV + "Y,SPX,2024-02-16,2000,CALL,2024-01-02 09:34:00,2000,oops,2,\n"
	_, err := s.ImportCSV(ctx, strings.NewReader(bad))
	require.Error(t, err)

	var dataErr *errors.DataError
	assert.True(t, errors.As(err, &dataErr))

	symbols, err := s.Symbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)
	assert.True(t, s.GetLastImport("SPX").IsZero())
}

func TestRunsAndTrades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := &models.RunSummary{
		RunID:       "run-1",
		Symbol:      "SPX",
		Strategy:    "short_strangle",
		StartDate:   at(9, 31),
		EndDate:     at(16, 0),
		InitialCash: decimal.NewFromInt(100000),
		FinalValue:  decimal.RequireFromString("100870.50"),
		TotalReturn: 0.0087,
		MaxDrawdown: 0.012,
		SharpeRatio: 1.4,
		WinRate:     0.5,
		TotalTrades: 2,
		CreatedAt:   created,
	}
	trades := []models.Trade{
		{
			ID: "t-2", PositionID: 2, Combination: "Strangle", Symbol: "SPX", PositionType: models.Short,
			Quantity: 1, OpenTime: at(10, 0), CloseTime: at(15, 0),
			ProfitLoss: decimal.NewFromInt(-130), Fees: decimal.RequireFromString("1.30"), Reason: "expired",
		},
		{
			ID: "t-1", PositionID: 1, Combination: "Strangle", Symbol: "SPX", PositionType: models.Short,
			Quantity: 2, OpenTime: at(9, 31), CloseTime: at(11, 0),
			ProfitLoss: decimal.RequireFromString("1000.50"), Fees: decimal.RequireFromString("2.60"),
		},
	}
	require.NoError(t, s.SaveRun(ctx, summary, trades))

	older := *summary
	older.RunID = "run-0"
	older.Strategy = "iron_condor"
	older.CreatedAt = created.Add(-time.Hour)
	require.NoError(t, s.SaveRun(ctx, &older, nil))

	runs, err := s.GetRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.True(t, runs[0].FinalValue.Equal(summary.FinalValue))
	assert.True(t, runs[0].StartDate.Equal(summary.StartDate))
	assert.Equal(t, 2, runs[0].TotalTrades)

	runs, err = s.GetRuns(ctx, RunFilter{Strategy: "iron_condor"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-0", runs[0].RunID)

	runs, err = s.GetRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	got, err := s.GetTrades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t-1", got[0].ID)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, models.Short, got[0].PositionType)
	assert.True(t, got[0].ProfitLoss.Equal(decimal.RequireFromString("1000.50")))
	assert.Empty(t, got[0].Reason)
	assert.Equal(t, "expired", got[1].Reason)

	none, err := s.GetTrades(ctx, "run-0")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLastImportCache(t *testing.T) {
	s := newTestStore(t)

	assert.True(t, s.GetLastImport("SPX").IsZero())
	when := at(16, 0)
	require.NoError(t, s.SetLastImport("SPX", when))
	assert.True(t, s.GetLastImport("SPX").Equal(when))

	delete(s.importTimes, "SPX")
	assert.True(t, s.GetLastImport("SPX").Equal(when), "falls back to the table")
}

func TestIsBusy(t *testing.T) {
	assert.False(t, isBusy(errors.New("boom")))
	assert.False(t, isBusy(nil))
}
