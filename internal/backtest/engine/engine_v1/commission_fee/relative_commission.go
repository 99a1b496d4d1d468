package commission_fee

import "math"

// RelativeCommissionFee charges a rate on the fill notional.
type RelativeCommissionFee struct {
	rate float64
}

// NewRelativeCommissionFee creates a relative commission fee with the given
// rate, e.g. 0.01 for 1% of the traded value.
func NewRelativeCommissionFee(rate float64) CommissionFee {
	return &RelativeCommissionFee{rate: rate}
}

// Calculate returns rate times the absolute fill notional.
func (c *RelativeCommissionFee) Calculate(size float64, price float64) float64 {
	return c.rate * math.Abs(size) * price
}
