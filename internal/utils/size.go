package utils

import "math"

// IsFractionSize reports whether a requested order size is a fraction of
// available buying power rather than an absolute number of units.
func IsFractionSize(size float64) bool {
	abs := math.Abs(size)

	return abs > 0 && abs < 1
}

// UnitsForFraction converts a fractional size request into the number of whole
// units purchasable with the given margin at the adjusted fill price. Leverage
// is the inverse of the margin requirement. Returns 0 when no single unit fits.
func UnitsForFraction(fraction float64, marginAvailable float64, leverage float64, adjustedPrice float64) float64 {
	if adjustedPrice <= 0 || marginAvailable <= 0 || fraction <= 0 {
		return 0
	}

	return math.Floor(marginAvailable * leverage * fraction / adjustedPrice)
}

// AdjustedPrice applies a relative half-spread to a raw fill price. Buys pay
// above the quoted price, sells receive below it.
func AdjustedPrice(price float64, spread float64, isBuy bool) float64 {
	if isBuy {
		return price * (1 + spread)
	}

	return price * (1 - spread)
}
