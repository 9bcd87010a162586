package store

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/performance"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

const quoteTimeLayout = "2006-01-02 15:04:05"

// csvQuote is one row of an option-chain export. Optional columns are blank
// when the source did not supply them.
type csvQuote struct {
	OptionID     string `csv:"option_id"`
	Symbol       string `csv:"symbol"`
	Expiration   string `csv:"expiration"`
	Strike       string `csv:"strike"`
	Type         string `csv:"type"`
	QuoteTime    string `csv:"quote_datetime"`
	Spot         string `csv:"spot"`
	Bid          string `csv:"bid"`
	Ask          string `csv:"ask"`
	Price        string `csv:"price"`
	Delta        string `csv:"delta"`
	Gamma        string `csv:"gamma"`
	Theta        string `csv:"theta"`
	Vega         string `csv:"vega"`
	Rho          string `csv:"rho"`
	IV           string `csv:"iv"`
	Volume       string `csv:"volume"`
	OpenInterest string `csv:"open_interest"`
}

// ParseCSV reads option records from a CSV export with a header row.
func ParseCSV(r io.Reader) ([]models.OptionRecord, error) {
	var rows []*csvQuote
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.NewDataError("csv", "", "failed to read quotes", err)
	}

	records := make([]models.OptionRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+2)
		}
		records = append(records, rec)
	}
	return records, nil
}

// importBatchSize is the number of records saved per transaction.
const importBatchSize = 5000

// ImportCSV parses a CSV export and saves its records in batches. A file that
// fails to parse stores nothing. It returns the number of records stored and
// marks each imported symbol with its latest quote time.
func (s *SQLiteStore) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	records, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}

	batch := performance.NewBatchProcessor(importBatchSize, func(items []models.OptionRecord) error {
		return s.SaveRecords(ctx, items)
	})
	for _, rec := range records {
		if err := batch.Add(rec); err != nil {
			return batch.Processed(), err
		}
	}
	if err := batch.Flush(); err != nil {
		return batch.Processed(), err
	}

	latest := make(map[string]time.Time)
	for _, rec := range records {
		if rec.Quote.Time.After(latest[rec.Contract.Symbol]) {
			latest[rec.Contract.Symbol] = rec.Quote.Time
		}
	}
	for symbol, t := range latest {
		if err := s.SetLastImport(symbol, t); err != nil {
			return len(records), err
		}
	}
	return len(records), nil
}

func (q *csvQuote) record() (models.OptionRecord, error) {
	var rec models.OptionRecord

	symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
	if symbol == "" {
		return rec, errors.NewValidationError("symbol", q.Symbol, "symbol is required")
	}

	expiration, err := time.ParseInLocation(dateLayout, strings.TrimSpace(q.Expiration), utils.EasternLocation)
	if err != nil {
		return rec, errors.NewDataError("expiration", symbol, "bad expiration "+q.Expiration, err)
	}
	typ, err := models.ParseOptionType(q.Type)
	if err != nil {
		return rec, errors.NewDataError("type", symbol, "bad option type", err)
	}
	quoteTime, err := parseQuoteTime(q.QuoteTime)
	if err != nil {
		return rec, errors.NewDataError("quote_datetime", symbol, "bad quote time "+q.QuoteTime, err)
	}

	var strike, spot, bid, ask decimal.Decimal
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"strike", q.Strike, &strike},
		{"spot", q.Spot, &spot},
		{"bid", q.Bid, &bid},
		{"ask", q.Ask, &ask},
	} {
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return rec, errors.NewDataError(f.name, symbol, "bad "+f.name+" "+f.raw, err)
		}
		*f.dst = d
	}

	price := bid.Add(ask).Div(decimal.NewFromInt(2))
	if raw := strings.TrimSpace(q.Price); raw != "" {
		price, err = decimal.NewFromString(raw)
		if err != nil {
			return rec, errors.NewDataError("price", symbol, "bad price "+raw, err)
		}
	}

	id := strings.TrimSpace(q.OptionID)
	if id == "" {
		id = fmt.Sprintf("%s-%s-%s-%s", symbol, expiration.Format("20060102"), strike.String(), typ)
	}

	rec.Contract = models.Contract{
		OptionID:   id,
		Symbol:     symbol,
		Strike:     strike,
		Expiration: expiration,
		Type:       typ,
	}
	rec.Quote = models.Quote{
		Time:      quoteTime,
		SpotPrice: spot,
		Bid:       bid,
		Ask:       ask,
		Price:     price,
	}

	greeks := []struct {
		name string
		raw  string
		dst  **float64
	}{
		{"delta", q.Delta, &rec.Greeks.Delta},
		{"gamma", q.Gamma, &rec.Greeks.Gamma},
		{"theta", q.Theta, &rec.Greeks.Theta},
		{"vega", q.Vega, &rec.Greeks.Vega},
		{"rho", q.Rho, &rec.Greeks.Rho},
		{"iv", q.IV, &rec.Extended.ImpliedVolatility},
	}
	for _, g := range greeks {
		if *g.dst, err = optionalFloat(g.raw); err != nil {
			return rec, errors.NewDataError(g.name, symbol, "bad "+g.name+" "+g.raw, err)
		}
	}
	if rec.Extended.Volume, err = optionalInt(q.Volume); err != nil {
		return rec, errors.NewDataError("volume", symbol, "bad volume "+q.Volume, err)
	}
	if rec.Extended.OpenInterest, err = optionalInt(q.OpenInterest); err != nil {
		return rec, errors.NewDataError("open_interest", symbol, "bad open interest "+q.OpenInterest, err)
	}

	return rec, nil
}

// parseQuoteTime accepts "2006-01-02 15:04:05" in US/Eastern or RFC 3339.
func parseQuoteTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(quoteTimeLayout, raw, utils.EasternLocation); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(utils.EasternLocation), nil
}

func optionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return models.Float(v), nil
}

func optionalInt(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return models.Int(v), nil
}
