package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/backcast-lab/backcast/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/backcast-lab/backcast/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestDefaultConfig() {
	config := DefaultConfig()

	suite.Equal(10000.0, config.InitialCash)
	suite.Equal(0.0, config.Spread)
	suite.Equal(commission_fee.ModelZero, config.Commission.Model)
	suite.Equal(1.0, config.Margin)
	suite.False(config.TradeOnClose)
	suite.False(config.ExclusiveOrders)
	suite.False(config.FinalizeTrades)
	suite.Equal(0.0, config.RiskFreeRate)
	suite.True(config.StartTime.IsNone())
	suite.True(config.EndTime.IsNone())
	suite.NotEmpty(config.SchemaVersion)
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestTestConfig() {
	startTime := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	endTime := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	config := TestConfig(startTime, endTime, commission_fee.ModelInteractiveBroker)

	suite.Equal(10000.0, config.InitialCash)
	suite.Equal(commission_fee.ModelInteractiveBroker, config.Commission.Model)
	suite.True(config.StartTime.IsSome())
	suite.True(config.EndTime.IsSome())
	suite.Equal(startTime, config.StartTime.Unwrap())
	suite.Equal(endTime, config.EndTime.Unwrap())
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLComplete() {
	yamlData := `
initial_cash: 50000
spread: 0.0002
commission:
  model: combined
  fixed: 1.0
  relative: 0.005
margin: 0.2
trade_on_close: true
exclusive_orders: true
finalize_trades: true
risk_free_rate: 0.02
start_time: 2023-01-01T00:00:00Z
end_time: 2023-12-31T00:00:00Z
`

	var config BacktestEngineV1Config
	err := yaml.Unmarshal([]byte(yamlData), &config)

	suite.NoError(err)
	suite.Equal(50000.0, config.InitialCash)
	suite.Equal(0.0002, config.Spread)
	suite.Equal(commission_fee.ModelCombined, config.Commission.Model)
	suite.Equal(1.0, config.Commission.Fixed)
	suite.Equal(0.005, config.Commission.Relative)
	suite.Equal(0.2, config.Margin)
	suite.True(config.TradeOnClose)
	suite.True(config.ExclusiveOrders)
	suite.True(config.FinalizeTrades)
	suite.Equal(0.02, config.RiskFreeRate)
	suite.True(config.StartTime.IsSome())
	suite.True(config.EndTime.IsSome())

	// Check dates
	startTime := config.StartTime.Unwrap()
	suite.Equal(2023, startTime.Year())
	suite.Equal(time.January, startTime.Month())
	suite.Equal(1, startTime.Day())

	endTime := config.EndTime.Unwrap()
	suite.Equal(2023, endTime.Year())
	suite.Equal(time.December, endTime.Month())
	suite.Equal(31, endTime.Day())
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLAbsentFieldsKeepDefaults() {
	yamlData := `
initial_cash: 25000
`

	var config BacktestEngineV1Config
	err := yaml.Unmarshal([]byte(yamlData), &config)

	suite.NoError(err)
	suite.Equal(25000.0, config.InitialCash)
	suite.Equal(0.0, config.Spread)
	suite.Equal(commission_fee.ModelZero, config.Commission.Model)
	suite.Equal(1.0, config.Margin)
	suite.False(config.TradeOnClose)
	suite.True(config.StartTime.IsNone())
	suite.True(config.EndTime.IsNone())
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLCommissionWithoutModel() {
	yamlData := `
commission:
  relative: 0.01
`

	var config BacktestEngineV1Config
	err := yaml.Unmarshal([]byte(yamlData), &config)

	suite.NoError(err)
	suite.Equal(commission_fee.ModelZero, config.Commission.Model)
	suite.Equal(0.01, config.Commission.Relative)
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLOnlyStartTime() {
	yamlData := `
initial_cash: 10000
start_time: 2024-06-01T00:00:00Z
`

	var config BacktestEngineV1Config
	err := yaml.Unmarshal([]byte(yamlData), &config)

	suite.NoError(err)
	suite.True(config.StartTime.IsSome())
	suite.True(config.EndTime.IsNone())
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLInvalid() {
	yamlData := `
initial_cash: not_a_number
`

	var config BacktestEngineV1Config
	err := yaml.Unmarshal([]byte(yamlData), &config)

	suite.Error(err)
}

func (suite *ConfigTestSuite) TestValidateRejectsBadValues() {
	tests := []struct {
		name   string
		mutate func(c *BacktestEngineV1Config)
	}{
		{"zero initial cash", func(c *BacktestEngineV1Config) { c.InitialCash = 0 }},
		{"negative initial cash", func(c *BacktestEngineV1Config) { c.InitialCash = -100 }},
		{"negative spread", func(c *BacktestEngineV1Config) { c.Spread = -0.001 }},
		{"zero margin", func(c *BacktestEngineV1Config) { c.Margin = 0 }},
		{"margin above one", func(c *BacktestEngineV1Config) { c.Margin = 1.5 }},
		{"risk free rate at one", func(c *BacktestEngineV1Config) { c.RiskFreeRate = 1.0 }},
		{"negative risk free rate", func(c *BacktestEngineV1Config) { c.RiskFreeRate = -0.1 }},
		{"negative fixed fee", func(c *BacktestEngineV1Config) { c.Commission.Fixed = -1 }},
		{"unknown commission model", func(c *BacktestEngineV1Config) { c.Commission.Model = "free_lunch" }},
		{"end before start", func(c *BacktestEngineV1Config) {
			c.StartTime = optional.Some(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
			c.EndTime = optional.Some(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			config := DefaultConfig()
			tc.mutate(&config)

			err := config.Validate()
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfig))
		})
	}
}

func (suite *ConfigTestSuite) TestValidateSchemaVersion() {
	config := DefaultConfig()
	config.SchemaVersion = "99.0.0"

	err := config.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSchemaVersionMismatch))

	// Unversioned configs predate the schema version field
	config.SchemaVersion = ""
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestCommissionModel() {
	config := DefaultConfig()
	config.Commission = CommissionConfig{Model: commission_fee.ModelRelative, Relative: 0.01}

	fee := config.CommissionModel()
	suite.InDelta(10.0, fee.Calculate(10, 100), 1e-9)
}

func (suite *ConfigTestSuite) TestLeverage() {
	config := DefaultConfig()
	suite.Equal(1.0, config.Leverage())

	config.Margin = 0.2
	suite.InDelta(5.0, config.Leverage(), 1e-9)
}

func (suite *ConfigTestSuite) TestGenerateSchema() {
	config := &BacktestEngineV1Config{}
	schema, err := config.GenerateSchema()

	suite.NoError(err)
	suite.NotNil(schema)
	suite.Equal("backcast-engine-v1-config", schema.Title)
	suite.Equal("Configuration schema for BacktestEngineV1", schema.Description)
	suite.Equal("http://json-schema.org/draft-07/schema#", schema.Version)
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	config := &BacktestEngineV1Config{}
	schemaJSON, err := config.GenerateSchemaJSON()

	suite.NoError(err)
	suite.NotEmpty(schemaJSON)

	// Verify it's valid JSON
	var result map[string]interface{}
	err = json.Unmarshal([]byte(schemaJSON), &result)
	suite.NoError(err)

	// Check schema properties
	suite.Contains(result, "title")
	suite.Equal("backcast-engine-v1-config", result["title"])

	// The commission model surfaces as a string enum
	suite.Contains(schemaJSON, "interactive_broker")
}
