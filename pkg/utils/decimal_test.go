package utils

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestQuantizers(t *testing.T) {
	tests := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"float keeps shortest form", Decimal2(12.77), "12.77"},
		{"half rounds away from zero", Decimal2(0.125), "0.13"},
		{"negative half rounds away from zero", Decimal2(-0.125), "-0.13"},
		{"int", Decimal2(5), "5"},
		{"int64", Decimal0(int64(7)), "7"},
		{"whole rounding", Decimal0(2.5), "3"},
		{"four places", Decimal4(0.123456), "0.1235"},
		{"decimal input", Decimal2(decimal.RequireFromString("1.005")), "1.01"},
		{"float32", Decimal2(float32(1.5)), "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestPremium(t *testing.T) {
	if got := Premium(decimal.RequireFromString("1.25"), -2); !got.Equal(decimal.NewFromInt(-250)) {
		t.Errorf("Premium = %s, want -250", got)
	}
	if got := Premium(decimal.RequireFromString("0.0333"), 3); !got.Equal(decimal.RequireFromString("9.99")) {
		t.Errorf("Premium = %s, want 9.99", got)
	}
	if !Multiplier().Equal(decimal.NewFromInt(ContractMultiplier)) {
		t.Errorf("Multiplier = %s", Multiplier())
	}
}

func TestAbsIntSign(t *testing.T) {
	if AbsInt(-3) != 3 || AbsInt(4) != 4 || AbsInt(0) != 0 {
		t.Error("AbsInt incorrect")
	}
	if Sign(-9) != -1 || Sign(0) != 0 || Sign(2) != 1 {
		t.Error("Sign incorrect")
	}
}

// Property: quantizing is idempotent and never moves a value by more than
// half a unit of the target scale
func TestProperty_QuantizeBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	halfCent := decimal.RequireFromString("0.005")
	properties.Property("Decimal2 is idempotent and within half a cent", prop.ForAll(
		func(v float64) bool {
			q := Decimal2(v)
			if !Decimal2(q).Equal(q) {
				return false
			}
			return q.Sub(decimal.NewFromFloat(v)).Abs().LessThanOrEqual(halfCent)
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("Decimal4 has at most four places", prop.ForAll(
		func(v float64) bool {
			return Decimal4(v).Exponent() >= -4
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
