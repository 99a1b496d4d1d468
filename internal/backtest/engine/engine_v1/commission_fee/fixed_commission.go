package commission_fee

// FixedCommissionFee charges a flat fee per fill regardless of size.
type FixedCommissionFee struct {
	fee float64
}

// NewFixedCommissionFee creates a fixed commission fee of the given amount.
func NewFixedCommissionFee(fee float64) CommissionFee {
	return &FixedCommissionFee{fee: fee}
}

// Calculate returns the flat fee for any non-zero fill.
func (c *FixedCommissionFee) Calculate(size float64, price float64) float64 {
	if size == 0 {
		return 0.0
	}

	return c.fee
}
