package models

import "github.com/shopspring/decimal"

// MinorUnitExponent is the number of decimal places of the currency's minor unit.
const MinorUnitExponent = 2

// FormatAmount renders a minor-unit amount with a fixed number of decimals.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -MinorUnitExponent).StringFixed(MinorUnitExponent)
}

// LineTotal multiplies a captured unit price by a quantity.
func LineTotal(unitPrice int64, quantity int) int64 {
	return unitPrice * int64(quantity)
}
