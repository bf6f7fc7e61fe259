package escrow

import (
	"github.com/shopspring/decimal"

	"shiftpay/internal/models"
	"shiftpay/internal/money"
)

// Outcome is the verified result of a shift, delivered by the external
// verification collaborator once the shift concludes.
type Outcome struct {
	VerifiedHours      decimal.Decimal
	OvertimeHours      decimal.Decimal
	OvertimeMultiplier decimal.Decimal
}

// Settlement is the final split of the held funds. WorkerPayout, PlatformFee
// and RefundToBusiness never sum to more than the held total.
type Settlement struct {
	WorkerPayout     money.Cents
	PlatformFee      money.Cents
	RefundToBusiness money.Cents
}

// CalculateSettlement computes the final payout split from the captured
// breakdown and the verified outcome.
//
// The unit price is derived from the captured worker pay and the originally
// booked hours, never from a re-fetched rate, so the settlement is bounded
// by what was actually held. Premiums are paid proportionally to the hours
// worked, capped at the held premium amounts. The platform fee is recomputed
// from the capture-time fee ratio, and the payout is capped so that
// payout + fee can never exceed the held total.
func CalculateSettlement(b models.AmountBreakdown, originalHours decimal.Decimal, outcome Outcome) (Settlement, error) {
	if !originalHours.IsPositive() {
		return Settlement{}, &ValidationError{Field: "original_hours", Reason: "must be positive"}
	}
	if outcome.VerifiedHours.IsNegative() {
		return Settlement{}, &ValidationError{Field: "verified_hours", Reason: "must not be negative"}
	}
	if outcome.OvertimeHours.IsNegative() {
		return Settlement{}, &ValidationError{Field: "overtime_hours", Reason: "must not be negative"}
	}
	if outcome.OvertimeHours.IsPositive() && outcome.OvertimeMultiplier.LessThan(decimal.NewFromInt(1)) {
		return Settlement{}, &ValidationError{Field: "overtime_multiplier", Reason: "must be at least 1"}
	}
	if !b.ConsistentTotal() {
		return Settlement{}, &ValidationError{Field: "amount_breakdown", Reason: "total does not match components"}
	}

	unitPrice := money.Decimal(b.WorkerPay).Div(originalHours)
	paidHours := outcome.VerifiedHours.Add(outcome.OvertimeHours.Mul(outcome.OvertimeMultiplier))
	earned := money.FromDecimal(unitPrice.Mul(paidHours))

	// Premiums scale with worked hours but never exceed what was held.
	premiumScale := outcome.VerifiedHours.Div(originalHours)
	if premiumScale.GreaterThan(decimal.NewFromInt(1)) {
		premiumScale = decimal.NewFromInt(1)
	}
	premiums := money.MulRate(b.Premiums(), premiumScale)

	payout := earned + premiums

	// Fee ratio locked at capture: fee / (base pay + premiums).
	feeRatio := decimal.Zero
	if earnedBase := b.WorkerPay + b.Premiums(); earnedBase > 0 {
		feeRatio = money.Decimal(b.PlatformFee).Div(money.Decimal(earnedBase))
	}

	// Cap the payout so payout + fee stays within the held total even with
	// heavy overtime.
	maxPayout := money.FromDecimal(money.Decimal(b.Total).Div(decimal.NewFromInt(1).Add(feeRatio)).Floor())
	if payout > maxPayout {
		payout = maxPayout
	}

	fee := money.FromDecimal(money.Decimal(payout).Mul(feeRatio))
	if payout+fee > b.Total {
		payout = b.Total - fee
	}

	return Settlement{
		WorkerPayout:     payout,
		PlatformFee:      fee,
		RefundToBusiness: b.Total - payout - fee,
	}, nil
}
