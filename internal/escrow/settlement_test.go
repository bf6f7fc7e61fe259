package escrow_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftpay/internal/escrow"
	"shiftpay/internal/money"
)

func TestCalculateSettlementFullHours(t *testing.T) {
	terms := baseTerms()
	b, err := escrow.CalculateHold(terms, escrow.DefaultPremiumRates())
	require.NoError(t, err)

	s, err := escrow.CalculateSettlement(b, terms.Hours, escrow.Outcome{
		VerifiedHours: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	// Verified hours match booked hours: worker gets the full pay and the
	// fee matches capture. Refund is the tax+buffer slack.
	assert.Equal(t, money.Cents(10000), s.WorkerPayout)
	assert.Equal(t, money.Cents(3500), s.PlatformFee)
	assert.Equal(t, b.Total-10000-3500, s.RefundToBusiness)
}

func TestCalculateSettlementPartialHours(t *testing.T) {
	terms := baseTerms()
	b, err := escrow.CalculateHold(terms, escrow.DefaultPremiumRates())
	require.NoError(t, err)

	s, err := escrow.CalculateSettlement(b, terms.Hours, escrow.Outcome{
		VerifiedHours: decimal.NewFromInt(3),
	})
	require.NoError(t, err)

	// 3 of 5 hours at the captured unit price of $20/hr.
	assert.Equal(t, money.Cents(6000), s.WorkerPayout)
	assert.Equal(t, money.Cents(2100), s.PlatformFee)
	assert.Equal(t, b.Total, s.WorkerPayout+s.PlatformFee+s.RefundToBusiness)
}

func TestCalculateSettlementNeverExceedsTotal(t *testing.T) {
	terms := baseTerms()
	terms.Holiday = true
	terms.Weekend = true
	b, err := escrow.CalculateHold(terms, escrow.DefaultPremiumRates())
	require.NoError(t, err)

	outcomes := []escrow.Outcome{
		{VerifiedHours: decimal.NewFromInt(0)},
		{VerifiedHours: decimal.NewFromInt(5)},
		{VerifiedHours: decimal.RequireFromString("2.5")},
		{VerifiedHours: decimal.NewFromInt(5), OvertimeHours: decimal.NewFromInt(3), OvertimeMultiplier: decimal.RequireFromString("1.5")},
		{VerifiedHours: decimal.NewFromInt(5), OvertimeHours: decimal.NewFromInt(40), OvertimeMultiplier: decimal.NewFromInt(2)},
		{VerifiedHours: decimal.NewFromInt(5), OvertimeHours: decimal.RequireFromString("0.25"), OvertimeMultiplier: decimal.RequireFromString("1.25")},
	}
	for _, outcome := range outcomes {
		s, err := escrow.CalculateSettlement(b, terms.Hours, outcome)
		require.NoError(t, err)
		assert.LessOrEqual(t, int64(s.WorkerPayout+s.PlatformFee+s.RefundToBusiness), int64(b.Total),
			"settlement must never exceed the held total (outcome %+v)", outcome)
		assert.GreaterOrEqual(t, int64(s.RefundToBusiness), int64(0))
		assert.GreaterOrEqual(t, int64(s.WorkerPayout), int64(0))
	}
}

func TestCalculateSettlementOvertimeCapped(t *testing.T) {
	terms := baseTerms()
	b, err := escrow.CalculateHold(terms, escrow.DefaultPremiumRates())
	require.NoError(t, err)

	// Absurd overtime: payout is capped so payout + fee fits in the total.
	s, err := escrow.CalculateSettlement(b, terms.Hours, escrow.Outcome{
		VerifiedHours:      decimal.NewFromInt(5),
		OvertimeHours:      decimal.NewFromInt(100),
		OvertimeMultiplier: decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, int64(s.WorkerPayout+s.PlatformFee), int64(b.Total))
	assert.Equal(t, money.Cents(0), s.RefundToBusiness)
}

func TestCalculateSettlementValidation(t *testing.T) {
	terms := baseTerms()
	b, err := escrow.CalculateHold(terms, escrow.DefaultPremiumRates())
	require.NoError(t, err)

	tests := []struct {
		name     string
		original decimal.Decimal
		outcome  escrow.Outcome
	}{
		{"zero original hours", decimal.Zero, escrow.Outcome{VerifiedHours: decimal.NewFromInt(1)}},
		{"negative verified", terms.Hours, escrow.Outcome{VerifiedHours: decimal.NewFromInt(-1)}},
		{"negative overtime", terms.Hours, escrow.Outcome{VerifiedHours: decimal.NewFromInt(1), OvertimeHours: decimal.NewFromInt(-1)}},
		{"multiplier below one", terms.Hours, escrow.Outcome{VerifiedHours: decimal.NewFromInt(1), OvertimeHours: decimal.NewFromInt(1), OvertimeMultiplier: decimal.RequireFromString("0.5")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := escrow.CalculateSettlement(b, tt.original, tt.outcome)
			var verr *escrow.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCalculateSettlementRejectsInconsistentBreakdown(t *testing.T) {
	terms := baseTerms()
	b, err := escrow.CalculateHold(terms, escrow.DefaultPremiumRates())
	require.NoError(t, err)
	b.Total += 1

	_, err = escrow.CalculateSettlement(b, terms.Hours, escrow.Outcome{VerifiedHours: terms.Hours})
	var verr *escrow.ValidationError
	assert.ErrorAs(t, err, &verr)
}
