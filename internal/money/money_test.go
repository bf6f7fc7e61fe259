package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftpay/internal/money"
)

func TestAddSub(t *testing.T) {
	assert.Equal(t, money.Cents(300), money.Add(100, 200))
	assert.Equal(t, money.Cents(50), money.Sub(150, 100))
}

func TestSubBelowZeroPanics(t *testing.T) {
	assert.Panics(t, func() {
		money.Sub(100, 101)
	})
}

func TestMulRateRoundsHalfUp(t *testing.T) {
	tests := []struct {
		name   string
		amount money.Cents
		rate   string
		want   money.Cents
	}{
		{"whole multiple", 2000, "5", 10000},
		{"half rounds up", 100, "0.125", 13},   // 12.5 -> 13
		{"below half rounds down", 100, "0.124", 12},
		{"fractional hours", 2000, "7.5", 15000},
		{"exchange rate", 10000, "1.2345", 12345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := decimal.NewFromString(tt.rate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, money.MulRate(tt.amount, rate))
		})
	}
}

func TestMulPercent(t *testing.T) {
	assert.Equal(t, money.Cents(3500), money.MulPercent(10000, decimal.NewFromInt(35)))
	assert.Equal(t, money.Cents(2430), money.MulPercent(13500, decimal.NewFromInt(18)))
	// 5% of 15930 = 796.5 -> 797
	assert.Equal(t, money.Cents(797), money.MulPercent(15930, decimal.NewFromInt(5)))
}

func TestSplitPercentSumsExactly(t *testing.T) {
	tests := []struct {
		name     string
		total    money.Cents
		percents []int64
	}{
		{"thirds", 10000, []int64{33, 33, 34}},
		{"awkward split", 9999, []int64{50, 30, 20}},
		{"single part", 123, []int64{100}},
		{"drift-prone", 101, []int64{33, 33, 34}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			percents := make([]decimal.Decimal, len(tt.percents))
			for i, p := range tt.percents {
				percents[i] = decimal.NewFromInt(p)
			}
			parts := money.SplitPercent(tt.total, percents, 0)
			var sum money.Cents
			for _, p := range parts {
				sum += p
			}
			assert.Equal(t, tt.total, sum, "parts must sum exactly to the total")
		})
	}
}

func TestSplitPercentRemainderIndex(t *testing.T) {
	// 33/33/34 of 101: rounded parts drift; the drift must land on index 1.
	percents := []decimal.Decimal{
		decimal.NewFromInt(33),
		decimal.NewFromInt(33),
		decimal.NewFromInt(34),
	}
	parts := money.SplitPercent(101, percents, 1)
	assert.Equal(t, money.Cents(33), parts[0])
	assert.Equal(t, money.Cents(34), parts[2])
	assert.Equal(t, money.Cents(101)-parts[0]-parts[2], parts[1])
}
