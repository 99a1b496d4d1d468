package commission_fee

import "math"

// CombinedCommissionFee charges a flat fee plus a rate on the fill notional.
type CombinedCommissionFee struct {
	fixed float64
	rate  float64
}

// NewCombinedCommissionFee creates a combined fixed-plus-relative fee.
func NewCombinedCommissionFee(fixed float64, rate float64) CommissionFee {
	return &CombinedCommissionFee{fixed: fixed, rate: rate}
}

// Calculate returns the flat fee plus rate times the absolute fill notional.
func (c *CombinedCommissionFee) Calculate(size float64, price float64) float64 {
	if size == 0 {
		return 0.0
	}

	return c.fixed + c.rate*math.Abs(size)*price
}
