package engine

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/internal/types"
)

// Strategy receives control once per stepped bar, after visibility has
// advanced and before pending orders settle. Implementations observe the
// market and place orders exclusively through the engine handle they are
// given; orders placed during OnBar fill no earlier than the next bar.
type Strategy interface {
	// Name identifies the strategy in logs and results.
	Name() string
	// OnBar is called once per stepped bar. Returning an error aborts the
	// run; the engine is marked finished and the error surfaces from
	// Step or Run.
	OnBar(engine Engine) error
}

// Lifecycle callback types for replay phases.
// Callbacks with an error return can abort execution by returning an error.

// OnStepCallback is called after each stepped bar with the current step index
// and the total number of steps.
type OnStepCallback func(current int, total int) error

// OnFinishedCallback is called once after finalization with the run's
// statistics report.
type OnFinishedCallback func(report types.StatsReport)

// LifecycleCallbacks holds the lifecycle callback functions for Run.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnStep     *OnStepCallback
	OnFinished *OnFinishedCallback
}

// TradeCallback observes opening fills. Callbacks run synchronously inside
// the settlement phase of a step, so they always observe broker state
// consistent with the fill. Calling Step, Goto, Run, Reset or Finalize from
// one fails with a reentrancy error; placing orders is allowed.
type TradeCallback func(event types.TradeEvent, trade types.Trade)

// RejectionHook observes orders the broker dropped without filling. Reasons
// are the types.RejectReason* constants. Unfillable orders are dropped
// silently unless a hook is installed.
type RejectionHook func(order types.Order, reason string)

// TradeSpec carries the optional parameters of a Buy or Sell request. The
// zero value is a whole-position market order on the sole instrument.
type TradeSpec struct {
	// Code selects the instrument. Empty resolves to the only instrument in
	// the dataset; with several instruments loaded, empty is an error.
	Code string
	// Size defaults to just under 1, a fraction ordering the maximum
	// affordable exposure. Values in (0, 1) spend that fraction of available
	// buying power; values >= 1 are whole units.
	Size optional.Option[float64]
	// Limit and Stop price the order; both unset means market.
	Limit optional.Option[float64]
	Stop  optional.Option[float64]
	// StopLoss and TakeProfit attach bracket orders to the resulting trade.
	StopLoss   optional.Option[float64]
	TakeProfit optional.Option[float64]
	// Tag is opaque bookkeeping propagated to the order and its trade.
	Tag string
}

// StepOutcome reports what a single Step advanced past.
type StepOutcome struct {
	// StepIndex is the 1-based index of the bar just stepped.
	StepIndex int
	// Time is the timestamp of the bar just stepped.
	Time time.Time
	// Finished reports whether the replay has consumed the final bar.
	Finished bool
}

//nolint:interfacebloat // Engine is a core interface that naturally requires multiple methods
type Engine interface {
	// Initialize the engine with the given YAML configuration content.
	Initialize(config string) error
	// SetDataSet loads one bar series per instrument code and arms the
	// replay: the union time axis is built and the cursor set to zero.
	// Series are validated (non-empty, no NaN prices) and sorted if needed.
	SetDataSet(data map[string][]types.Bar) error
	// SetStrategy installs the strategy invoked on every stepped bar. May be
	// nil for manual (API-driven) replays.
	SetStrategy(strategy Strategy) error
	// SetResultsFolder sets the output directory for recorded results.
	SetResultsFolder(folder string) error
	// AddTradeCallback registers an observer of opening fills. Callbacks are
	// invoked in registration order and survive Reset.
	AddTradeCallback(callback TradeCallback)
	// SetRejectionHook installs the observer of dropped orders.
	SetRejectionHook(hook RejectionHook)

	// Step advances the replay by exactly one bar on the union time axis.
	Step() (StepOutcome, error)
	// Goto moves the cursor to the given 1-based step, replaying from the
	// start when moving backward. A non-nil override strategy drives the
	// intermediate bars and the previous strategy is restored afterwards.
	Goto(step int, override Strategy) error
	// Run steps until the axis is exhausted, finalizes, and returns the
	// statistics report. A strategy or broker error aborts the run; the
	// report computed from the partial run is returned alongside the error.
	Run(ctx context.Context, callbacks LifecycleCallbacks) (types.StatsReport, error)
	// Reset rewinds to the armed state: cursor zero, fresh broker, same
	// dataset, strategy and callbacks.
	Reset() error
	// Finalize ends the run, optionally force-closing open trades, and
	// computes statistics. Idempotent: repeated calls return the same report.
	Finalize() (types.StatsReport, error)

	// Buy submits an order for positive size, Sell for negative size. The
	// returned order is pending; it fills no earlier than the next bar.
	Buy(spec TradeSpec) (*types.Order, error)
	Sell(spec TradeSpec) (*types.Order, error)

	// Data returns the visible bars for an instrument: everything up to and
	// including the current step. Before the first step the full series is
	// returned. Empty code resolves like TradeSpec.Code.
	Data(code string) (types.BarSeries, error)
	// Position aggregates open trades across all instruments; PositionOf
	// aggregates one instrument.
	Position() types.Position
	PositionOf(code string) types.Position
	Equity() float64
	Cash() float64
	// Trades returns open trades; ClosedTrades the closed ledger; Orders the
	// pending order book, all in creation order.
	Trades() []*types.Trade
	ClosedTrades() []*types.Trade
	Orders() []*types.Order
	// CurrentTime is the timestamp of the last stepped bar, None before the
	// first step.
	CurrentTime() optional.Option[time.Time]
	// Progress is StepIndex over TotalSteps in [0, 1].
	Progress() float64
	StepIndex() int
	TotalSteps() int
	IsFinished() bool
	// GetStateSnapshot returns a pure serializable view of the replay state.
	GetStateSnapshot() types.StateSnapshot
	// GetAccountInfo returns the broker account state at the current mark.
	GetAccountInfo() types.AccountInfo
	// GetConfigSchema returns the JSON schema of the engine configuration.
	GetConfigSchema() (string, error)
}
