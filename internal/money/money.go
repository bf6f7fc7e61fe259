package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a monetary amount in minor currency units (kobo, cents, pence).
// All arithmetic in the escrow core happens on this type so that no
// fractional amount is ever persisted.
type Cents int64

// Add returns a + b.
func Add(a, b Cents) Cents {
	return a + b
}

// Sub returns a - b. A negative result is a programming error, not a
// business outcome, so it panics instead of returning an error.
func Sub(a, b Cents) Cents {
	if b > a {
		panic(fmt.Sprintf("money: subtraction below zero (%d - %d)", a, b))
	}
	return a - b
}

// MulRate multiplies an amount by an arbitrary decimal rate (exchange rate,
// hour count, overtime multiplier) and rounds half-up once, at the end.
func MulRate(amount Cents, rate decimal.Decimal) Cents {
	d := decimal.New(int64(amount), 0).Mul(rate)
	return Cents(d.Round(0).IntPart())
}

// MulPercent applies a percentage expressed in whole points (35 means 35%).
// Rounding happens half-up at the final step only.
func MulPercent(amount Cents, percent decimal.Decimal) Cents {
	d := decimal.New(int64(amount), 0).Mul(percent).Div(decimal.NewFromInt(100))
	return Cents(d.Round(0).IntPart())
}

// SplitPercent divides a total into one part per percentage. The parts are
// guaranteed to sum exactly to the total: each part is rounded half-up and
// the accumulated remainder (positive or negative) lands on the component at
// remainderIdx, so a one-cent rounding drift can never leak out of the split.
func SplitPercent(total Cents, percents []decimal.Decimal, remainderIdx int) []Cents {
	if remainderIdx < 0 || remainderIdx >= len(percents) {
		panic(fmt.Sprintf("money: remainder index %d out of range", remainderIdx))
	}
	parts := make([]Cents, len(percents))
	var assigned Cents
	for i, p := range percents {
		if i == remainderIdx {
			continue
		}
		parts[i] = MulPercent(total, p)
		assigned += parts[i]
	}
	parts[remainderIdx] = total - assigned
	return parts
}

// FromDecimal converts an exact decimal amount of minor units to Cents,
// rounding half-up.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Round(0).IntPart())
}

// Decimal exposes an amount as a shopspring decimal for further exact math.
func Decimal(a Cents) decimal.Decimal {
	return decimal.New(int64(a), 0)
}
