package commission_fee

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type CommissionFeeTestSuite struct {
	suite.Suite
}

func TestCommissionFeeSuite(t *testing.T) {
	suite.Run(t, new(CommissionFeeTestSuite))
}

func (suite *CommissionFeeTestSuite) TestZeroCommissionFee() {
	fee := NewZeroCommissionFee()
	suite.NotNil(fee)

	tests := []struct {
		name     string
		size     float64
		price    float64
		expected float64
	}{
		{"zero size", 0, 100, 0},
		{"small size", 10, 100, 0},
		{"large size", 10000, 100, 0},
		{"negative size", -100, 100, 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			result := fee.Calculate(tc.size, tc.price)
			suite.Equal(tc.expected, result)
		})
	}
}

func (suite *CommissionFeeTestSuite) TestFixedCommissionFee() {
	fee := NewFixedCommissionFee(2.5)
	suite.NotNil(fee)

	tests := []struct {
		name     string
		size     float64
		price    float64
		expected float64
	}{
		{"zero size", 0, 100, 0},
		{"small size", 1, 100, 2.5},
		{"large size", 10000, 50, 2.5},
		{"negative size", -100, 100, 2.5},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			result := fee.Calculate(tc.size, tc.price)
			suite.Equal(tc.expected, result)
		})
	}
}

func (suite *CommissionFeeTestSuite) TestRelativeCommissionFee() {
	fee := NewRelativeCommissionFee(0.01)
	suite.NotNil(fee)

	tests := []struct {
		name     string
		size     float64
		price    float64
		expected float64
	}{
		{"zero size", 0, 100, 0},
		{"buy fill", 10, 100, 10.0},   // 0.01 * 10 * 100
		{"sell fill", -10, 100, 10.0}, // fee on the absolute notional
		{"fractional notional", 3, 99.5, 2.985},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			result := fee.Calculate(tc.size, tc.price)
			suite.InDelta(tc.expected, result, 1e-9)
		})
	}
}

func (suite *CommissionFeeTestSuite) TestCombinedCommissionFee() {
	fee := NewCombinedCommissionFee(1.0, 0.005)
	suite.NotNil(fee)

	tests := []struct {
		name     string
		size     float64
		price    float64
		expected float64
	}{
		{"zero size", 0, 100, 0},
		{"buy fill", 10, 100, 6.0},   // 1.0 + 0.005 * 10 * 100
		{"sell fill", -20, 50, 6.0},  // 1.0 + 0.005 * 20 * 50
		{"tiny fill", 1, 10, 1.05},   // flat fee dominates
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			result := fee.Calculate(tc.size, tc.price)
			suite.InDelta(tc.expected, result, 1e-9)
		})
	}
}

func (suite *CommissionFeeTestSuite) TestInteractiveBrokerCommissionFee() {
	fee := NewInteractiveBrokerCommissionFee()
	suite.NotNil(fee)

	tests := []struct {
		name     string
		size     float64
		price    float64
		expected float64
	}{
		{"zero size", 0, 100, 1.0},          // minimum fee is 1.0
		{"small size - min fee", 10, 100, 1.0},  // 0.005 * 10 = 0.05 < 1.0, so min fee applies
		{"size at threshold", 200, 100, 1.0},    // 0.005 * 200 = 1.0, so exactly at threshold
		{"large size", 1000, 100, 5.0},          // 0.005 * 1000 = 5.0 > 1.0
		{"short fill", -10000, 100, 50.0},       // 0.005 * 10000 = 50.0, price ignored
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			result := fee.Calculate(tc.size, tc.price)
			suite.Equal(tc.expected, result)
		})
	}
}

func (suite *CommissionFeeTestSuite) TestFuncCommissionFee() {
	fee := Func(func(size float64, price float64) float64 {
		// Rebate model used by some venues for adding liquidity
		return -0.001 * size * price
	})

	suite.InDelta(-1.0, fee.Calculate(10, 100), 1e-9)
	suite.InDelta(1.0, fee.Calculate(-10, 100), 1e-9)
}

func (suite *CommissionFeeTestSuite) TestGetCommissionModel() {
	tests := []struct {
		name           string
		model          Model
		fixed          float64
		relative       float64
		testSize       float64
		testPrice      float64
		expectedResult float64
	}{
		{
			name:           "interactive broker",
			model:          ModelInteractiveBroker,
			testSize:       1000,
			testPrice:      100,
			expectedResult: 5.0,
		},
		{
			name:           "zero commission",
			model:          ModelZero,
			testSize:       1000,
			testPrice:      100,
			expectedResult: 0.0,
		},
		{
			name:           "fixed commission",
			model:          ModelFixed,
			fixed:          3.0,
			testSize:       1000,
			testPrice:      100,
			expectedResult: 3.0,
		},
		{
			name:           "relative commission",
			model:          ModelRelative,
			relative:       0.01,
			testSize:       10,
			testPrice:      100,
			expectedResult: 10.0,
		},
		{
			name:           "combined commission",
			model:          ModelCombined,
			fixed:          1.0,
			relative:       0.005,
			testSize:       10,
			testPrice:      100,
			expectedResult: 6.0,
		},
		{
			name:           "unknown model defaults to zero",
			model:          Model("unknown"),
			testSize:       1000,
			testPrice:      100,
			expectedResult: 0.0,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			handler := GetCommissionModel(tc.model, tc.fixed, tc.relative)
			suite.NotNil(handler)
			result := handler.Calculate(tc.testSize, tc.testPrice)
			suite.InDelta(tc.expectedResult, result, 1e-9)
		})
	}
}

func (suite *CommissionFeeTestSuite) TestAllModels() {
	suite.Len(AllModels, 5)
	suite.Contains(AllModels, ModelZero)
	suite.Contains(AllModels, ModelFixed)
	suite.Contains(AllModels, ModelRelative)
	suite.Contains(AllModels, ModelCombined)
	suite.Contains(AllModels, ModelInteractiveBroker)
}

func (suite *CommissionFeeTestSuite) TestModelConstants() {
	suite.Equal(Model("zero"), ModelZero)
	suite.Equal(Model("fixed"), ModelFixed)
	suite.Equal(Model("relative"), ModelRelative)
	suite.Equal(Model("combined"), ModelCombined)
	suite.Equal(Model("interactive_broker"), ModelInteractiveBroker)
}
