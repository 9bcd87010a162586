// Package chain holds an option-chain snapshot for one symbol at one quote time,
// indexed by expiration and strike.
package chain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Chain is a read-only snapshot. Options in it are fresh, untraded instances.
type Chain struct {
	symbol    string
	quoteTime time.Time
	spot      decimal.Decimal
	options   []*option.Option

	expirations []time.Time
	byExpiry    map[time.Time]*expiry
}

type expiry struct {
	date    time.Time
	strikes []decimal.Decimal
	options []*option.Option
}

// New indexes the given options.
func New(symbol string, quoteTime time.Time, options []*option.Option) *Chain {
	c := &Chain{
		symbol:    symbol,
		quoteTime: quoteTime,
		options:   options,
		byExpiry:  make(map[time.Time]*expiry),
	}

	seen := make(map[time.Time]map[string]bool)
	for _, o := range options {
		if c.spot.IsZero() {
			c.spot = o.SpotPrice()
		}
		key := utils.DateOf(o.Expiration())
		e, ok := c.byExpiry[key]
		if !ok {
			e = &expiry{date: o.Expiration()}
			c.byExpiry[key] = e
			c.expirations = append(c.expirations, key)
			seen[key] = make(map[string]bool)
		}
		e.options = append(e.options, o)
		if s := o.Strike().String(); !seen[key][s] {
			seen[key][s] = true
			e.strikes = append(e.strikes, o.Strike())
		}
	}

	sort.Slice(c.expirations, func(i, j int) bool { return c.expirations[i].Before(c.expirations[j]) })
	for _, e := range c.byExpiry {
		sort.Slice(e.strikes, func(i, j int) bool { return e.strikes[i].LessThan(e.strikes[j]) })
		sort.SliceStable(e.options, func(i, j int) bool { return e.options[i].Strike().LessThan(e.options[j].Strike()) })
	}
	return c
}

// FromRecords builds options from snapshot records and indexes them. Records
// for other symbols are skipped.
func FromRecords(cfg option.Config, symbol string, quoteTime time.Time, records []models.OptionRecord) (*Chain, error) {
	options := make([]*option.Option, 0, len(records))
	for _, rec := range records {
		if symbol != "" && rec.Contract.Symbol != symbol {
			continue
		}
		o, err := option.FromRecord(cfg, rec)
		if err != nil {
			return nil, errors.Wrapf(err, "chain %s at %s", symbol, quoteTime.Format(time.RFC3339))
		}
		options = append(options, o)
	}
	return New(symbol, quoteTime, options), nil
}

// Symbol returns the underlying symbol.
func (c *Chain) Symbol() string { return c.symbol }

// QuoteTime returns the snapshot time.
func (c *Chain) QuoteTime() time.Time { return c.quoteTime }

// SpotPrice returns the underlying price reported by the snapshot.
func (c *Chain) SpotPrice() decimal.Decimal { return c.spot }

// Len returns the number of options.
func (c *Chain) Len() int { return len(c.options) }

// Options returns every option in the snapshot.
func (c *Chain) Options() []*option.Option {
	out := make([]*option.Option, len(c.options))
	copy(out, c.options)
	return out
}

// Expirations returns the distinct expiration dates in ascending order.
func (c *Chain) Expirations() []time.Time {
	out := make([]time.Time, 0, len(c.expirations))
	for _, key := range c.expirations {
		out = append(out, c.byExpiry[key].date)
	}
	return out
}

// Strikes returns the distinct strikes for an expiration in ascending order.
func (c *Chain) Strikes(expiration time.Time) []decimal.Decimal {
	e, ok := c.byExpiry[utils.DateOf(expiration)]
	if !ok {
		return nil
	}
	out := make([]decimal.Decimal, len(e.strikes))
	copy(out, e.strikes)
	return out
}

// OptionsFor returns the options of one type for an expiration, by strike.
func (c *Chain) OptionsFor(expiration time.Time, typ models.OptionType) []*option.Option {
	e, ok := c.byExpiry[utils.DateOf(expiration)]
	if !ok {
		return nil
	}
	var out []*option.Option
	for _, o := range e.options {
		if o.Type() == typ {
			out = append(out, o)
		}
	}
	return out
}

// Find returns the single option matching expiration, type and strike.
func (c *Chain) Find(expiration time.Time, typ models.OptionType, strike decimal.Decimal) (*option.Option, error) {
	var match []*option.Option
	for _, o := range c.OptionsFor(expiration, typ) {
		if o.Strike().Equal(strike) {
			match = append(match, o)
		}
	}
	switch len(match) {
	case 0:
		return nil, c.lookupError(errors.ErrNotFound, expiration, typ, "strike "+strike.String())
	case 1:
		return match[0], nil
	}
	return nil, c.lookupError(errors.ErrAmbiguous, expiration, typ, fmt.Sprintf("%d options at strike %s", len(match), strike))
}

// NearestDelta returns the option whose delta is closest to target. Options
// without a supplied delta are ignored.
func (c *Chain) NearestDelta(expiration time.Time, typ models.OptionType, target float64) (*option.Option, error) {
	var best []*option.Option
	bestDist := math.Inf(1)
	for _, o := range c.OptionsFor(expiration, typ) {
		d := o.Greeks().Delta
		if d == nil {
			continue
		}
		dist := math.Abs(*d - target)
		switch {
		case dist < bestDist:
			best = []*option.Option{o}
			bestDist = dist
		case dist == bestDist:
			best = append(best, o)
		}
	}
	switch len(best) {
	case 0:
		return nil, c.lookupError(errors.ErrNotFound, expiration, typ, fmt.Sprintf("delta near %.2f", target))
	case 1:
		return best[0], nil
	}
	return nil, c.lookupError(errors.ErrAmbiguous, expiration, typ, fmt.Sprintf("%d options equally near delta %.2f", len(best), target))
}

// ExpirationNearestDTE returns the expiration whose days to expiration is
// closest to dte, preferring the earlier one on a tie.
func (c *Chain) ExpirationNearestDTE(dte int) (time.Time, error) {
	if len(c.expirations) == 0 {
		return time.Time{}, errors.NewDataError("expiration", c.symbol, "chain is empty", errors.ErrNotFound)
	}
	best := c.expirations[0]
	bestDist := math.MaxInt
	for _, key := range c.expirations {
		dist := utils.AbsInt(utils.DaysBetween(c.quoteTime, key) - dte)
		if dist < bestDist {
			best, bestDist = key, dist
		}
	}
	return c.byExpiry[best].date, nil
}

func (c *Chain) lookupError(sentinel error, expiration time.Time, typ models.OptionType, what string) error {
	return errors.NewDataError("option", c.symbol,
		fmt.Sprintf("%s %s %s", expiration.Format("2006-01-02"), typ, what), sentinel)
}
