package utils

import (
	"fmt"
	"time"
)

// EasternLocation is the timezone US equity options trade in.
var EasternLocation *time.Location

func init() {
	var err error
	EasternLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to UTC-5
		EasternLocation = time.FixedZone("EST", -5*60*60)
	}
}

// MarketClose is the daily cutoff after which an option expiring that day is expired.
type MarketClose struct {
	Hour   int
	Minute int
}

// DefaultMarketClose is 16:15, the close of index option trading.
var DefaultMarketClose = MarketClose{Hour: 16, Minute: 15}

// ParseMarketClose parses an "HH:MM" string.
func ParseMarketClose(s string) (MarketClose, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return MarketClose{}, fmt.Errorf("invalid market close %q: %w", s, err)
	}
	return MarketClose{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String formats the cutoff as HH:MM.
func (m MarketClose) String() string {
	return fmt.Sprintf("%02d:%02d", m.Hour, m.Minute)
}

// IsZero reports whether no cutoff was configured.
func (m MarketClose) IsZero() bool {
	return m.Hour == 0 && m.Minute == 0
}

// ExpirationCutoff returns the instant on the expiration date, in the location of
// the observed time, at which the option stops trading.
func ExpirationCutoff(expiration time.Time, mc MarketClose, loc *time.Location) time.Time {
	if loc == nil {
		loc = expiration.Location()
	}
	y, m, d := expiration.Date()
	return time.Date(y, m, d, mc.Hour, mc.Minute, 0, 0, loc)
}

// IsPastCutoff reports whether t is at or after the cutoff on the expiration date.
func IsPastCutoff(t, expiration time.Time, mc MarketClose) bool {
	return !t.Before(ExpirationCutoff(expiration, mc, t.Location()))
}

// DateOf truncates t to its calendar date in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateAfter reports whether a's calendar date is later than b's.
func DateAfter(a, b time.Time) bool {
	return DateOf(a).After(DateOf(b))
}

// DaysBetween returns whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}
