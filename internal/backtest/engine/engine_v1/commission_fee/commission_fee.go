package commission_fee

type CommissionFee interface {
	// Calculate the commission fee for a fill of the given signed size at the
	// given price and returns the fee in account currency. A negative fee is
	// credited to the account as a rebate.
	Calculate(size float64, price float64) float64
}

type Model string

const (
	ModelZero              Model = "zero"
	ModelFixed             Model = "fixed"
	ModelRelative          Model = "relative"
	ModelCombined          Model = "combined"
	ModelInteractiveBroker Model = "interactive_broker"
)

var AllModels = []any{
	ModelZero,
	ModelFixed,
	ModelRelative,
	ModelCombined,
	ModelInteractiveBroker,
}

// GetCommissionModel builds the fee calculator for a model. Fixed is the flat
// fee per fill, relative the rate applied to the fill notional; models that
// do not use a parameter ignore it.
func GetCommissionModel(model Model, fixed float64, relative float64) CommissionFee {
	switch model {
	case ModelFixed:
		return NewFixedCommissionFee(fixed)
	case ModelRelative:
		return NewRelativeCommissionFee(relative)
	case ModelCombined:
		return NewCombinedCommissionFee(fixed, relative)
	case ModelInteractiveBroker:
		return NewInteractiveBrokerCommissionFee()
	case ModelZero:
		return NewZeroCommissionFee()
	default:
		return NewZeroCommissionFee()
	}
}
