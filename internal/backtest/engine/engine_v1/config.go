package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/backcast-lab/backcast/internal/version"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// CommissionConfig selects the fee model applied to every fill. Fixed is the
// flat fee per fill, Relative the rate on the fill notional; each model reads
// only the parameters it needs.
type CommissionConfig struct {
	Model    commission_fee.Model `yaml:"model" json:"model" jsonschema:"title=Commission Model,description=Fee model applied to every fill"`
	Fixed    float64              `yaml:"fixed" json:"fixed" jsonschema:"title=Fixed Fee,description=Flat fee per fill in account currency,minimum=0" validate:"gte=0"`
	Relative float64              `yaml:"relative" json:"relative" jsonschema:"title=Relative Fee,description=Fee rate applied to the fill notional,minimum=0" validate:"gte=0"`
}

type BacktestEngineV1Config struct {
	SchemaVersion   string                     `yaml:"schema_version" json:"schema_version" jsonschema:"title=Schema Version,description=Semver of the config schema this file was written for"`
	InitialCash     float64                    `yaml:"initial_cash" json:"initial_cash" jsonschema:"title=Initial Cash,description=Starting cash for the replay in account currency,minimum=0" validate:"gt=0"`
	Spread          float64                    `yaml:"spread" json:"spread" jsonschema:"title=Spread,description=Half-spread fraction applied against every fill,minimum=0" validate:"gte=0"`
	Commission      CommissionConfig           `yaml:"commission" json:"commission" jsonschema:"title=Commission,description=Commission fee model and parameters"`
	Margin          float64                    `yaml:"margin" json:"margin" jsonschema:"title=Margin,description=Margin requirement as a fraction of notional,minimum=0,maximum=1" validate:"gt=0,lte=1"`
	TradeOnClose    bool                       `yaml:"trade_on_close" json:"trade_on_close" jsonschema:"title=Trade On Close,description=Fill market orders at the placement bar close instead of the next open"`
	ExclusiveOrders bool                       `yaml:"exclusive_orders" json:"exclusive_orders" jsonschema:"title=Exclusive Orders,description=Each new order closes previous trades and cancels previous orders on its instrument"`
	FinalizeTrades  bool                       `yaml:"finalize_trades" json:"finalize_trades" jsonschema:"title=Finalize Trades,description=Force-close trades still open when the replay ends"`
	RiskFreeRate    float64                    `yaml:"risk_free_rate" json:"risk_free_rate" jsonschema:"title=Risk Free Rate,description=Annual risk-free rate used by the Sharpe ratio,minimum=0,maximum=1" validate:"gte=0,lt=1"`
	StartTime       optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional inclusive lower bound on bar timestamps"`
	EndTime         optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional inclusive upper bound on bar timestamps"`
}

// UnmarshalYAML implements custom unmarshaling for BacktestEngineV1Config.
// Absent fields keep the DefaultConfig values.
func (c *BacktestEngineV1Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Config struct {
		SchemaVersion   *string           `yaml:"schema_version"`
		InitialCash     *float64          `yaml:"initial_cash"`
		Spread          *float64          `yaml:"spread"`
		Commission      *CommissionConfig `yaml:"commission"`
		Margin          *float64          `yaml:"margin"`
		TradeOnClose    *bool             `yaml:"trade_on_close"`
		ExclusiveOrders *bool             `yaml:"exclusive_orders"`
		FinalizeTrades  *bool             `yaml:"finalize_trades"`
		RiskFreeRate    *float64          `yaml:"risk_free_rate"`
		StartTime       *time.Time        `yaml:"start_time"`
		EndTime         *time.Time        `yaml:"end_time"`
	}

	var config Config
	if err := unmarshal(&config); err != nil {
		return err
	}

	*c = DefaultConfig()

	if config.SchemaVersion != nil {
		c.SchemaVersion = *config.SchemaVersion
	}

	if config.InitialCash != nil {
		c.InitialCash = *config.InitialCash
	}

	if config.Spread != nil {
		c.Spread = *config.Spread
	}

	if config.Commission != nil {
		c.Commission = *config.Commission
		if c.Commission.Model == "" {
			c.Commission.Model = commission_fee.ModelZero
		}
	}

	if config.Margin != nil {
		c.Margin = *config.Margin
	}

	if config.TradeOnClose != nil {
		c.TradeOnClose = *config.TradeOnClose
	}

	if config.ExclusiveOrders != nil {
		c.ExclusiveOrders = *config.ExclusiveOrders
	}

	if config.FinalizeTrades != nil {
		c.FinalizeTrades = *config.FinalizeTrades
	}

	if config.RiskFreeRate != nil {
		c.RiskFreeRate = *config.RiskFreeRate
	}

	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// Validate checks the configuration invariants and the schema version
// compatibility with this engine build.
func (c *BacktestEngineV1Config) Validate() error {
	if err := version.CheckSchemaCompatibility(version.Version, c.SchemaVersion); err != nil {
		return errors.Wrap(errors.ErrCodeSchemaVersionMismatch, "config schema version is incompatible", err)
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid engine configuration", err)
	}

	if c.Commission.Model != "" {
		known := false

		for _, m := range commission_fee.AllModels {
			if c.Commission.Model == m {
				known = true

				break
			}
		}

		if !known {
			return errors.Newf(errors.ErrCodeInvalidConfig, "unknown commission model %q", c.Commission.Model)
		}
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfig, "end_time is before start_time")
	}

	return nil
}

// CommissionModel builds the fee calculator described by the configuration.
func (c *BacktestEngineV1Config) CommissionModel() commission_fee.CommissionFee {
	return commission_fee.GetCommissionModel(c.Commission.Model, c.Commission.Fixed, c.Commission.Relative)
}

// Leverage is the reciprocal of the margin requirement.
func (c *BacktestEngineV1Config) Leverage() float64 {
	return 1.0 / c.Margin
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}
			if strings.Contains(t.String(), "commission_fee.Model") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllModels,
				}
			}
			return nil
		},
	}

	// Generate schema from BacktestEngineV1Config struct
	schema := reflector.Reflect(c)

	// Set schema metadata
	schema.Title = "backcast-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// TestConfig returns a config with a fixed time window and commission model
// for tests.
func TestConfig(startTime time.Time, endTime time.Time, model commission_fee.Model) BacktestEngineV1Config {
	config := DefaultConfig()
	config.Commission.Model = model
	config.StartTime = optional.Some(startTime)
	config.EndTime = optional.Some(endTime)

	return config
}

// DefaultConfig returns a BacktestEngineV1Config with default values.
func DefaultConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		SchemaVersion:   strings.TrimPrefix(version.Version, "v"),
		InitialCash:     10000,
		Spread:          0,
		Commission:      CommissionConfig{Model: commission_fee.ModelZero},
		Margin:          1.0,
		TradeOnClose:    false,
		ExclusiveOrders: false,
		FinalizeTrades:  false,
		RiskFreeRate:    0,
		StartTime:       optional.None[time.Time](),
		EndTime:         optional.None[time.Time](),
	}
}
