package commission_fee

// Func adapts a bare function to the CommissionFee interface for embedders
// with bespoke fee schedules. Not reachable from YAML configuration.
type Func func(size float64, price float64) float64

// Calculate invokes the wrapped function.
func (f Func) Calculate(size float64, price float64) float64 {
	return f(size, price)
}
