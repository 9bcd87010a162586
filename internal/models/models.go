// Package models provides domain models shared by the option, combination and portfolio layers.
package models

import (
	"fmt"
	"strings"
)

// OptionType is CALL or PUT.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// ParseOptionType accepts CALL/PUT and the usual abbreviations, case-insensitively.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return Call, nil
	case "PUT", "P":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// Valid reports whether t is CALL or PUT.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// PositionType is the direction of a position.
type PositionType string

const (
	Long  PositionType = "LONG"
	Short PositionType = "SHORT"
)

// PositionTypeOf returns LONG for positive quantities and SHORT otherwise.
func PositionTypeOf(quantity int) PositionType {
	if quantity > 0 {
		return Long
	}
	return Short
}

// Float returns a pointer to v, for optional greek fields.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v, for optional volume and open interest fields.
func Int(v int64) *int64 {
	return &v
}
