package engine

import (
	"context"
	"math"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/backcast-lab/backcast/internal/backtest/engine"
	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// defaultOrderSize is the sentinel for an unspecified order size: a fraction
// just below one, ordering the maximum affordable exposure.
const defaultOrderSize = 1 - 2.220446049250313e-16

type BacktestEngineV1 struct {
	config        BacktestEngineV1Config
	strategy      engine.Strategy
	resultsFolder string
	log           *logger.Logger

	view   *marketView
	broker *backtestBroker

	// cursor counts fully processed bars; the next Step processes axis[cursor].
	cursor      int
	currentTime optional.Option[time.Time]
	started     bool
	finished    bool
	stepping    bool

	tradeCallbacks []engine.TradeCallback
	rejectionHook  engine.RejectionHook

	finalReport optional.Option[types.StatsReport]
}

func NewBacktestEngineV1() engine.Engine {
	return &BacktestEngineV1{
		config:         DefaultConfig(),
		strategy:       nil,
		resultsFolder:  "",
		log:            logger.NewNopLogger(),
		view:           nil,
		broker:         nil,
		cursor:         0,
		currentTime:    optional.None[time.Time](),
		started:        false,
		finished:       false,
		stepping:       false,
		tradeCallbacks: nil,
		rejectionHook:  nil,
		finalReport:    optional.None[types.StatsReport](),
	}
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	// parse the config
	err := yaml.Unmarshal([]byte(config), &b.config)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigParseFailed, "failed to parse config", err)
	}

	if err := b.config.Validate(); err != nil {
		return err
	}

	// initialize the logger
	var loggerError error

	b.log, loggerError = logger.NewLogger()
	if loggerError != nil {
		return loggerError
	}

	b.log.Debug("Backtest engine initialized",
		zap.String("config", config),
	)

	return nil
}

// SetDataSet implements engine.Engine. Loading a dataset arms the replay:
// series are validated and sorted, the configured time window applied, the
// union axis built, and a fresh broker created at the initial cash.
func (b *BacktestEngineV1) SetDataSet(data map[string][]types.Bar) error {
	if len(data) == 0 {
		return errors.New(errors.ErrCodeNoData, "dataset must contain at least one instrument")
	}

	normalized := make(map[string]types.BarSeries, len(data))

	for code, bars := range data {
		series, resorted, err := types.NormalizeSeries(code, bars)
		if err != nil {
			return err
		}

		if resorted {
			b.log.Warn("Bars were not sorted by time, sorting",
				zap.String("code", code),
			)
		}

		series = b.applyTimeWindow(series)
		if len(series) == 0 {
			return errors.Newf(errors.ErrCodeEmptySeries,
				"no bars left for code %s after applying the configured time window", code)
		}

		normalized[code] = series
	}

	b.view = newMarketView(normalized)
	b.attachBroker()
	b.cursor = 0
	b.currentTime = optional.None[time.Time]()
	b.started = true
	b.finished = false
	b.finalReport = optional.None[types.StatsReport]()

	b.log.Debug("Dataset loaded",
		zap.Int("instruments", len(normalized)),
		zap.Int("total_steps", len(b.view.axis)),
	)

	return nil
}

func (b *BacktestEngineV1) applyTimeWindow(series types.BarSeries) types.BarSeries {
	windowed := series

	if b.config.StartTime.IsSome() {
		start := b.config.StartTime.Unwrap()

		i := 0
		for i < len(windowed) && windowed[i].Time.Before(start) {
			i++
		}

		windowed = windowed[i:]
	}

	if b.config.EndTime.IsSome() {
		end := b.config.EndTime.Unwrap()

		j := len(windowed)
		for j > 0 && windowed[j-1].Time.After(end) {
			j--
		}

		windowed = windowed[:j]
	}

	return windowed
}

func (b *BacktestEngineV1) attachBroker() {
	b.broker = newBacktestBroker(&b.config, b.config.CommissionModel(), b.view, b.log)
	b.broker.onTradeOpen = b.dispatchTradeOpen
	b.broker.onReject = b.dispatchRejection
}

// SetStrategy implements engine.Engine.
func (b *BacktestEngineV1) SetStrategy(strategy engine.Strategy) error {
	b.strategy = strategy

	if strategy != nil {
		b.log.Debug("Strategy set",
			zap.String("strategy", strategy.Name()),
		)
	}

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder
	b.log.Debug("Results folder set",
		zap.String("folder", folder),
	)

	return nil
}

// AddTradeCallback implements engine.Engine.
func (b *BacktestEngineV1) AddTradeCallback(callback engine.TradeCallback) {
	b.tradeCallbacks = append(b.tradeCallbacks, callback)
}

// SetRejectionHook implements engine.Engine.
func (b *BacktestEngineV1) SetRejectionHook(hook engine.RejectionHook) {
	b.rejectionHook = hook
}

func (b *BacktestEngineV1) dispatchTradeOpen(event types.TradeEvent, trade types.Trade) {
	for _, callback := range b.tradeCallbacks {
		callback(event, trade)
	}
}

func (b *BacktestEngineV1) dispatchRejection(order types.Order, reason string) {
	if b.rejectionHook != nil {
		b.rejectionHook(order, reason)
	}
}

func (b *BacktestEngineV1) enterStepping() error {
	if b.stepping {
		return errors.New(errors.ErrCodeReentrantCall,
			"stepping methods must not be called from inside a strategy or trade callback")
	}

	b.stepping = true

	return nil
}

func (b *BacktestEngineV1) leaveStepping() {
	b.stepping = false
}

// Step implements engine.Engine.
func (b *BacktestEngineV1) Step() (engine.StepOutcome, error) {
	if err := b.enterStepping(); err != nil {
		return engine.StepOutcome{}, err
	}
	defer b.leaveStepping()

	return b.stepOnce()
}

// stepOnce processes one bar: advance visibility, invoke the strategy, then
// run the broker settlement pass. The cursor only advances when the whole
// bar completed, so a strategy or broker error keeps the equity history
// truncated to completed bars.
func (b *BacktestEngineV1) stepOnce() (engine.StepOutcome, error) {
	if !b.started {
		return engine.StepOutcome{}, errors.New(errors.ErrCodeNotStarted, "no dataset loaded")
	}

	if b.finished || b.cursor >= len(b.view.axis) {
		b.finished = true

		return engine.StepOutcome{
			StepIndex: b.cursor,
			Time:      b.lastSteppedTime(),
			Finished:  true,
		}, nil
	}

	c := b.cursor
	t := b.view.axis[c]

	// The bar's timestamp becomes the engine time before the strategy runs,
	// so a strategy acting at bar t observes t as the current time.
	b.currentTime = optional.Some(t)
	b.broker.placementIndex = c
	b.broker.now = t
	b.view.advanceTo(t)

	if b.strategy != nil {
		if err := b.strategy.OnBar(b); err != nil {
			b.finished = true

			return engine.StepOutcome{StepIndex: b.cursor, Time: t, Finished: true},
				errors.Wrapf(errors.ErrCodeStrategyFailed, err, "strategy %s failed at %s",
					b.strategy.Name(), t.Format(time.RFC3339))
		}
	}

	if err := b.broker.next(t, c); err != nil {
		b.finished = true

		return engine.StepOutcome{StepIndex: b.cursor, Time: t, Finished: true}, err
	}

	b.cursor++
	if b.cursor >= len(b.view.axis) {
		b.finished = true
	}

	return engine.StepOutcome{StepIndex: b.cursor, Time: t, Finished: b.finished}, nil
}

// Goto implements engine.Engine. Steps are 1-based and clamped to the axis;
// moving backward replays from the start.
func (b *BacktestEngineV1) Goto(step int, override engine.Strategy) error {
	if err := b.enterStepping(); err != nil {
		return err
	}
	defer b.leaveStepping()

	if !b.started {
		return errors.New(errors.ErrCodeNotStarted, "no dataset loaded")
	}

	if step < 1 {
		step = 1
	}

	if step > len(b.view.axis) {
		step = len(b.view.axis)
	}

	if step < b.cursor {
		b.resetRun()
	}

	if override != nil {
		previous := b.strategy
		b.strategy = override

		defer func() { b.strategy = previous }()
	}

	for b.cursor < step && !b.finished {
		if _, err := b.stepOnce(); err != nil {
			return err
		}
	}

	return nil
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) (types.StatsReport, error) {
	if err := b.enterStepping(); err != nil {
		return types.StatsReport{}, err
	}
	defer b.leaveStepping()

	if !b.started {
		return types.StatsReport{}, errors.New(errors.ErrCodeNotStarted, "no dataset loaded")
	}

	for !b.finished {
		if err := ctx.Err(); err != nil {
			report, _ := b.finalizeRun()

			return report, err
		}

		outcome, err := b.stepOnce()
		if err != nil {
			report, _ := b.finalizeRun()

			return report, err
		}

		if callbacks.OnStep != nil {
			if err := (*callbacks.OnStep)(outcome.StepIndex, len(b.view.axis)); err != nil {
				report, _ := b.finalizeRun()

				return report, errors.Wrap(errors.ErrCodeCallbackFailed, "step callback failed", err)
			}
		}
	}

	report, err := b.finalizeRun()
	if err != nil {
		return report, err
	}

	if callbacks.OnFinished != nil {
		(*callbacks.OnFinished)(report)
	}

	return report, nil
}

// Reset implements engine.Engine. The dataset, strategy, callbacks and
// configuration survive; the broker is rebuilt at the initial cash.
func (b *BacktestEngineV1) Reset() error {
	if err := b.enterStepping(); err != nil {
		return err
	}
	defer b.leaveStepping()

	if !b.started {
		return errors.New(errors.ErrCodeNotStarted, "no dataset loaded")
	}

	b.resetRun()

	return nil
}

func (b *BacktestEngineV1) resetRun() {
	b.view.reset()
	b.attachBroker()
	b.cursor = 0
	b.currentTime = optional.None[time.Time]()
	b.finished = false
	b.finalReport = optional.None[types.StatsReport]()

	b.log.Debug("Replay reset")
}

// Finalize implements engine.Engine.
func (b *BacktestEngineV1) Finalize() (types.StatsReport, error) {
	if err := b.enterStepping(); err != nil {
		return types.StatsReport{}, err
	}
	defer b.leaveStepping()

	if !b.started {
		return types.StatsReport{}, errors.New(errors.ErrCodeNotStarted, "no dataset loaded")
	}

	return b.finalizeRun()
}

func (b *BacktestEngineV1) finalizeRun() (types.StatsReport, error) {
	if b.finalReport.IsSome() {
		return b.finalReport.Unwrap(), nil
	}

	b.finished = true

	if len(b.broker.open) > 0 {
		if b.config.FinalizeTrades && b.cursor > 0 {
			b.broker.finalizeOpenTrades(b.view.axis[b.cursor-1], b.cursor-1)
		} else {
			b.log.Warn("Open trades remain at finalization",
				zap.Int("count", len(b.broker.open)),
			)
		}
	}

	report, err := computeStats(b.broker.closed, b.broker.equity, b.broker.equityTime, b.config.RiskFreeRate)
	if err != nil {
		return types.StatsReport{}, err
	}

	report.TotalFees = b.broker.totalFees
	report.OpenTradesAtEnd = len(b.broker.open)

	b.finalReport = optional.Some(report)

	if b.resultsFolder != "" {
		if err := b.writeResults(report); err != nil {
			return report, err
		}
	}

	return report, nil
}

// Buy implements engine.Engine.
func (b *BacktestEngineV1) Buy(spec engine.TradeSpec) (*types.Order, error) {
	return b.submitOrder(spec, false)
}

// Sell implements engine.Engine.
func (b *BacktestEngineV1) Sell(spec engine.TradeSpec) (*types.Order, error) {
	return b.submitOrder(spec, true)
}

func (b *BacktestEngineV1) submitOrder(spec engine.TradeSpec, sell bool) (*types.Order, error) {
	if !b.started {
		return nil, errors.New(errors.ErrCodeNotStarted, "no dataset loaded")
	}

	code, err := b.resolveCode(spec.Code)
	if err != nil {
		return nil, err
	}

	size := spec.Size.TakeOr(defaultOrderSize)
	if size <= 0 || math.IsNaN(size) {
		return nil, errors.Newf(errors.ErrCodeInvalidSize, "size must be positive, got %v", size)
	}

	if sell {
		size = -size
	}

	order := &types.Order{
		Code:       code,
		Size:       size,
		Limit:      spec.Limit,
		Stop:       spec.Stop,
		StopLoss:   spec.StopLoss,
		TakeProfit: spec.TakeProfit,
		Tag:        spec.Tag,
		Kind:       types.OrderKindPlain,
		Intent:     types.OrderIntentOpen,
	}

	return b.broker.newOrder(order)
}

func (b *BacktestEngineV1) resolveCode(code string) (string, error) {
	if code == "" {
		sole, ok := b.view.soleCode()
		if !ok {
			return "", errors.New(errors.ErrCodeAmbiguousInstrument,
				"several instruments are loaded, an instrument code is required")
		}

		return sole, nil
	}

	if !b.view.hasCode(code) {
		return "", errors.Newf(errors.ErrCodeUnknownInstrument, "no data loaded for code %s", code)
	}

	return code, nil
}

// Data implements engine.Engine. It returns the bars visible at the current
// step; before the first step has revealed anything the full series is
// returned so callers can inspect the dataset they are about to replay.
// During a step the cutoff is the bar being processed, never beyond it.
func (b *BacktestEngineV1) Data(code string) (types.BarSeries, error) {
	if !b.started {
		return nil, errors.New(errors.ErrCodeNotStarted, "no dataset loaded")
	}

	resolved, err := b.resolveCode(code)
	if err != nil {
		return nil, err
	}

	if !b.view.anyVisible() {
		return b.view.fullBars(resolved), nil
	}

	return b.view.visibleBars(resolved), nil
}

// Position implements engine.Engine.
func (b *BacktestEngineV1) Position() types.Position {
	if b.broker == nil {
		return types.Position{}
	}

	return b.broker.positionOf("")
}

// PositionOf implements engine.Engine.
func (b *BacktestEngineV1) PositionOf(code string) types.Position {
	if b.broker == nil {
		return types.Position{}
	}

	return b.broker.positionOf(code)
}

// Equity implements engine.Engine.
func (b *BacktestEngineV1) Equity() float64 {
	if b.broker == nil {
		return b.config.InitialCash
	}

	return b.broker.equityNow()
}

// Cash implements engine.Engine.
func (b *BacktestEngineV1) Cash() float64 {
	if b.broker == nil {
		return b.config.InitialCash
	}

	return b.broker.cash
}

// Trades implements engine.Engine.
func (b *BacktestEngineV1) Trades() []*types.Trade {
	if b.broker == nil {
		return nil
	}

	return b.broker.snapshotOpen()
}

// ClosedTrades implements engine.Engine.
func (b *BacktestEngineV1) ClosedTrades() []*types.Trade {
	if b.broker == nil {
		return nil
	}

	closed := make([]*types.Trade, len(b.broker.closed))
	copy(closed, b.broker.closed)

	return closed
}

// Orders implements engine.Engine.
func (b *BacktestEngineV1) Orders() []*types.Order {
	if b.broker == nil {
		return nil
	}

	return b.broker.snapshotPending()
}

// CurrentTime implements engine.Engine.
func (b *BacktestEngineV1) CurrentTime() optional.Option[time.Time] {
	return b.currentTime
}

func (b *BacktestEngineV1) lastSteppedTime() time.Time {
	return b.currentTime.TakeOr(time.Time{})
}

// Progress implements engine.Engine.
func (b *BacktestEngineV1) Progress() float64 {
	total := b.TotalSteps()
	if total == 0 {
		return 0
	}

	return float64(b.cursor) / float64(total)
}

// StepIndex implements engine.Engine.
func (b *BacktestEngineV1) StepIndex() int {
	return b.cursor
}

// TotalSteps implements engine.Engine.
func (b *BacktestEngineV1) TotalSteps() int {
	if b.view == nil {
		return 0
	}

	return len(b.view.axis)
}

// IsFinished implements engine.Engine.
func (b *BacktestEngineV1) IsFinished() bool {
	return b.finished
}

// GetStateSnapshot implements engine.Engine.
func (b *BacktestEngineV1) GetStateSnapshot() types.StateSnapshot {
	snapshot := types.StateSnapshot{
		CurrentTime: "-",
		Progress:    b.Progress(),
		StepIndex:   b.cursor,
		TotalSteps:  b.TotalSteps(),
		Finished:    b.finished,
		Cash:        b.Cash(),
		Equity:      b.Equity(),
		Positions:   map[string]float64{},
	}

	if t, err := b.CurrentTime().Take(); err == nil {
		snapshot.CurrentTime = t.Format(time.RFC3339)
	}

	if b.broker != nil {
		for _, trade := range b.broker.open {
			snapshot.Position += trade.Size
			snapshot.Positions[trade.Code] += trade.Size
		}

		snapshot.PendingOrders = len(b.broker.pending)
		snapshot.OpenTrades = len(b.broker.open)
		snapshot.ClosedTrades = len(b.broker.closed)
	}

	return snapshot
}

// GetAccountInfo implements engine.Engine.
func (b *BacktestEngineV1) GetAccountInfo() types.AccountInfo {
	if b.broker == nil {
		return types.AccountInfo{
			Balance:     b.config.InitialCash,
			Equity:      b.config.InitialCash,
			BuyingPower: b.config.InitialCash * b.config.Leverage(),
		}
	}

	return b.broker.accountInfo()
}

// GetConfigSchema implements engine.Engine.
func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	config := b.config

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to generate schema", err)
	}

	return schema, nil
}
