// Package backcast is the public embedding surface of the replay engine.
// It re-exports construction, the strategy adapters and the value types an
// embedder needs, so applications depend on a single import path.
package backcast

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/internal/backtest/engine"
	enginev1 "github.com/backcast-lab/backcast/internal/backtest/engine/engine_v1"
	"github.com/backcast-lab/backcast/internal/backtest/engine/engine_v1/datasource"
	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/strategy"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/internal/version"
)

// Engine drives a bar replay. See the interface methods for the replay,
// trading and inspection surface.
type Engine = engine.Engine

// Strategy and callback types.
type (
	Strategy           = engine.Strategy
	TradeSpec          = engine.TradeSpec
	StepOutcome        = engine.StepOutcome
	LifecycleCallbacks = engine.LifecycleCallbacks
	OnStepCallback     = engine.OnStepCallback
	OnFinishedCallback = engine.OnFinishedCallback
	TradeCallback      = engine.TradeCallback
	RejectionHook      = engine.RejectionHook
)

// Value types observed through the engine.
type (
	Bar           = types.Bar
	BarSeries     = types.BarSeries
	Order         = types.Order
	Trade         = types.Trade
	Position      = types.Position
	AccountInfo   = types.AccountInfo
	StateSnapshot = types.StateSnapshot
	StatsReport   = types.StatsReport
	TradeEvent    = types.TradeEvent
)

// New creates a replay engine with the default configuration. Configure it
// with Engine.Initialize and arm it with Engine.SetDataSet.
func New() Engine {
	return enginev1.NewBacktestEngineV1()
}

// NewFuncStrategy adapts a bare function to a named Strategy.
func NewFuncStrategy(name string, onBar func(e Engine) error) Strategy {
	return strategy.NewFunc(name, onBar)
}

// NewBuyAndHold returns the built-in buy-and-hold strategy.
func NewBuyAndHold(code string) Strategy {
	return strategy.NewBuyAndHold(code)
}

// NewSMACrossover returns the built-in SMA crossover strategy. Non-positive
// periods fall back to 5 and 20.
func NewSMACrossover(shortPeriod, longPeriod int, code string) Strategy {
	return strategy.NewSMACrossover(shortPeriod, longPeriod, code)
}

// LoadBars loads bar series from a CSV or Parquet file, or a directory of
// them, keyed by instrument code. The result feeds Engine.SetDataSet.
func LoadBars(path string) (map[string][]Bar, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	return datasource.LoadPath(path,
		optional.None[time.Time](), optional.None[time.Time](), log)
}

// Some wraps a value for the optional fields of TradeSpec.
func Some[T any](v T) optional.Option[T] {
	return optional.Some(v)
}

// None is the unset value for the optional fields of TradeSpec.
func None[T any]() optional.Option[T] {
	return optional.None[T]()
}

// Version reports the engine version.
func Version() string {
	return version.GetVersion()
}
