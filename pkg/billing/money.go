package billing

import "github.com/shopspring/decimal"

// Money precision is the currency minor-unit scale (2 for INR paise).
const moneyScale = 2

// RoundMoney rounds an amount to the currency's minor-unit precision using
// round-half-up, the rounding mode all billing math is held to.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	// decimal.Round is round-half-away-from-zero; amounts here are
	// non-negative so it matches round-half-up.
	return amount.Round(moneyScale)
}

// ComputeTax derives tax and total from a base amount and a percentage rate.
// The returned pair always satisfies base + tax == total exactly: total is
// rounded first and tax is the difference, so rounding error can never split
// between the two fields.
func ComputeTax(base, ratePercent decimal.Decimal) (tax, total decimal.Decimal) {
	base = RoundMoney(base)
	oneHundred := decimal.NewFromInt(100)
	total = RoundMoney(base.Mul(oneHundred.Add(ratePercent)).Div(oneHundred))
	tax = total.Sub(base)
	return tax, total
}

// ToMinorUnits converts a decimal amount to integer minor units (paise).
// Providers exchange integer minor units; this conversion happens only at
// the gateway adapter boundary.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return RoundMoney(amount).Shift(moneyScale).IntPart()
}

// FromMinorUnits converts integer minor units back to a decimal amount
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-moneyScale)
}
