package commission_fee

import "math"

type InteractiveBrokerCommissionFee struct {
}

func NewInteractiveBrokerCommissionFee() CommissionFee {
	return &InteractiveBrokerCommissionFee{}
}

func (c *InteractiveBrokerCommissionFee) Calculate(size float64, price float64) float64 {
	fee := 0.005 * math.Abs(size)
	if fee < 1.0 {
		return 1.0
	}

	return fee
}
