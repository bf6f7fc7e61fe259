package escrow

import (
	"github.com/shopspring/decimal"

	"shiftpay/internal/models"
	"shiftpay/internal/money"
)

// ShiftTerms is everything needed to price the hold for a booked shift.
// The exchange rate arrives pre-resolved and is locked for the lifetime of
// the record.
type ShiftTerms struct {
	HourlyRate money.Cents
	Hours      decimal.Decimal

	Holiday bool
	Night   bool
	Weekend bool

	PlatformFeePercent decimal.Decimal
	TaxPercent         decimal.Decimal
	ContingencyPercent decimal.Decimal

	Currency     string
	ExchangeRate decimal.Decimal
}

// PremiumRates holds the premium percentages applied on top of base pay.
// These are configuration, not business constants.
type PremiumRates struct {
	Holiday decimal.Decimal
	Night   decimal.Decimal
	Weekend decimal.Decimal
}

// DefaultPremiumRates returns the platform defaults: holiday 50%, night 15%,
// weekend 10%.
func DefaultPremiumRates() PremiumRates {
	return PremiumRates{
		Holiday: decimal.NewFromInt(50),
		Night:   decimal.NewFromInt(15),
		Weekend: decimal.NewFromInt(10),
	}
}

// CalculateHold computes the full amount breakdown to capture for a shift.
//
// The stacking order is load-bearing for the sum invariant and must not be
// reordered: premiums on base pay, platform fee on base+premiums, tax on
// earnings+fee, contingency on earnings+fee+tax. Every multiplication routes
// through the money package so each component is rounded exactly once and
// the total is the exact integer sum of its parts.
func CalculateHold(terms ShiftTerms, rates PremiumRates) (models.AmountBreakdown, error) {
	if err := validateTerms(terms); err != nil {
		return models.AmountBreakdown{}, err
	}

	base := money.MulRate(terms.HourlyRate, terms.Hours)

	var b models.AmountBreakdown
	b.WorkerPay = base
	if terms.Holiday {
		b.HolidayPremium = money.MulPercent(base, rates.Holiday)
	}
	if terms.Night {
		b.NightPremium = money.MulPercent(base, rates.Night)
	}
	if terms.Weekend {
		b.WeekendPremium = money.MulPercent(base, rates.Weekend)
	}

	earnings := base + b.Premiums()
	b.PlatformFee = money.MulPercent(earnings, terms.PlatformFeePercent)
	b.Tax = money.MulPercent(earnings+b.PlatformFee, terms.TaxPercent)
	b.ContingencyBuffer = money.MulPercent(earnings+b.PlatformFee+b.Tax, terms.ContingencyPercent)
	b.Total = earnings + b.PlatformFee + b.Tax + b.ContingencyBuffer

	return b, nil
}

func validateTerms(terms ShiftTerms) error {
	if terms.HourlyRate <= 0 {
		return &ValidationError{Field: "hourly_rate", Reason: "must be positive"}
	}
	if !terms.Hours.IsPositive() {
		return &ValidationError{Field: "hours", Reason: "must be positive"}
	}
	if !validCurrency(terms.Currency) {
		return &ValidationError{Field: "currency", Reason: "must be a three-letter ISO 4217 code"}
	}
	if !terms.ExchangeRate.IsPositive() {
		return &ValidationError{Field: "exchange_rate", Reason: "must be positive"}
	}
	for _, pct := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"platform_fee_percent", terms.PlatformFeePercent},
		{"tax_percent", terms.TaxPercent},
		{"contingency_percent", terms.ContingencyPercent},
	} {
		if pct.value.IsNegative() {
			return &ValidationError{Field: pct.name, Reason: "must not be negative"}
		}
	}
	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
