package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindTime
)

// Value is a string, number or time attached to an option or position by a strategy.
type Value struct {
	kind ValueKind
	str  string
	num  decimal.Decimal
	tm   time.Time
}

// String creates a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number creates a numeric value.
func Number(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// Time creates a time value.
func Time(t time.Time) Value {
	return Value{kind: KindTime, tm: t}
}

// Kind returns the variant held.
func (v Value) Kind() ValueKind {
	return v.kind
}

// Str returns the string variant.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Num returns the numeric variant.
func (v Value) Num() (decimal.Decimal, bool) {
	return v.num, v.kind == KindNumber
}

// Time returns the time variant.
func (v Value) Time() (time.Time, bool) {
	return v.tm, v.kind == KindTime
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindTime:
		return v.tm.Format(time.RFC3339)
	}
	return ""
}

// MarshalText lets bags be encoded as JSON objects.
func (v Value) MarshalText() ([]byte, error) {
	if v.kind == 0 {
		return nil, fmt.Errorf("empty value")
	}
	return []byte(v.String()), nil
}

// UserDefined is the caller-annotation bag carried by options and positions.
type UserDefined map[string]Value

// Merge copies every entry of other into u, overwriting existing keys, and returns u.
// A nil receiver allocates a new bag.
func (u UserDefined) Merge(other UserDefined) UserDefined {
	if u == nil {
		u = make(UserDefined, len(other))
	}
	for k, v := range other {
		u[k] = v
	}
	return u
}

// Clone returns a shallow copy.
func (u UserDefined) Clone() UserDefined {
	return UserDefined(nil).Merge(u)
}
