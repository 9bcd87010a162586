package option

import "strings"

// Status is a set of orthogonal lifecycle flags. TradeIsOpen and
// TradePartiallyClosed co-occur, and Expired combines with either trade flag.
type Status uint8

const (
	Initialized Status = 1 << iota
	TradeIsOpen
	TradePartiallyClosed
	TradeIsClosed
	Expired
)

var statusNames = []struct {
	flag Status
	name string
}{
	{Initialized, "INITIALIZED"},
	{TradeIsOpen, "TRADE_IS_OPEN"},
	{TradePartiallyClosed, "TRADE_PARTIALLY_CLOSED"},
	{TradeIsClosed, "TRADE_IS_CLOSED"},
	{Expired, "EXPIRED"},
}

// Has reports whether every flag in f is set.
func (s Status) Has(f Status) bool {
	return s&f == f
}

// With returns s with the flags in f set.
func (s Status) With(f Status) Status {
	return s | f
}

// Without returns s with the flags in f cleared.
func (s Status) Without(f Status) Status {
	return s &^ f
}

func (s Status) String() string {
	var parts []string
	for _, n := range statusNames {
		if s.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}
