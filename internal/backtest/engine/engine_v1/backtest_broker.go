package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/backcast-lab/backcast/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/internal/utils"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// backtestBroker owns cash, pending orders, open trades and the closed-trade
// ledger for one run. It advances one bar at a time: contingent brackets
// first, then plain orders in submission order, then the equity mark. All
// mutation happens inside this settlement pass so fills are deterministic.
type backtestBroker struct {
	log    *logger.Logger
	config *BacktestEngineV1Config
	fee    commission_fee.CommissionFee
	view   *marketView

	cash float64

	pending   []*types.Order
	allOrders []*types.Order // append-only submission ledger
	open      []*types.Trade
	closed    []*types.Trade

	equity     []float64
	equityTime []time.Time

	totalFees float64

	// placementIndex stamps orders at submission so next-bar execution holds
	// for strategy and API placements alike. The engine sets it to the step
	// being processed; between steps it keeps the last stepped index, and -1
	// before the first step.
	placementIndex int
	now            time.Time

	onTradeOpen func(types.TradeEvent, types.Trade)
	onReject    func(types.Order, string)
}

func newBacktestBroker(config *BacktestEngineV1Config, fee commission_fee.CommissionFee, view *marketView, log *logger.Logger) *backtestBroker {
	return &backtestBroker{
		log:            log,
		config:         config,
		fee:            fee,
		view:           view,
		cash:           config.InitialCash,
		placementIndex: -1,
	}
}

// closeSlice is one planned reduction of an open trade by an opening-intent
// fill netting against it.
type closeSlice struct {
	trade *types.Trade
	// closedSize carries the sign of the trade being reduced.
	closedSize float64
}

// newOrder validates and books an order. Under exclusive orders, booking a
// strategy order first cancels opposite-direction pending orders and
// enqueues full closes of opposite-direction open trades on the instrument.
func (b *backtestBroker) newOrder(order *types.Order) (*types.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	if b.config.ExclusiveOrders && order.Kind == types.OrderKindPlain && order.Intent == types.OrderIntentOpen {
		b.applyExclusivePolicy(order)
	}

	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	order.Status = types.OrderStatusPending
	order.PlacedAt = b.now
	order.PlacedAtIndex = b.placementIndex
	order.Bind(b)

	b.pending = append(b.pending, order)
	b.allOrders = append(b.allOrders, order)

	b.log.Debug("Order booked",
		zap.String("id", order.ID),
		zap.String("code", order.Code),
		zap.Float64("size", order.Size),
		zap.Int("placed_at_index", order.PlacedAtIndex),
	)

	return order, nil
}

func (b *backtestBroker) applyExclusivePolicy(order *types.Order) {
	for _, pending := range b.snapshotPending() {
		if pending.Code != order.Code || pending.Kind != types.OrderKindPlain {
			continue
		}

		if pending.Size*order.Size < 0 {
			if b.removePending(pending.ID) {
				pending.Status = types.OrderStatusCancelled
				b.reject(pending, types.RejectReasonExclusive)
			}
		}
	}

	for _, trade := range b.snapshotOpen() {
		if trade.Code != order.Code || trade.Size*order.Size >= 0 {
			continue
		}

		if err := b.CloseTrade(trade.ID, 1.0); err != nil {
			b.log.Warn("Exclusive policy close failed",
				zap.String("trade_id", trade.ID),
				zap.Error(err),
			)
		}
	}
}

// CancelOrder implements types.OrderCanceller. Returns false when the order
// is no longer pending.
func (b *backtestBroker) CancelOrder(orderID string) bool {
	for _, order := range b.pending {
		if order.ID == orderID {
			b.removePending(orderID)
			order.Status = types.OrderStatusCancelled

			return true
		}
	}

	return false
}

// CloseTrade implements types.TradeCloser: it enqueues a market order
// reducing the trade by portion of its current size. The reduction settles
// when that order fills on a subsequent bar.
func (b *backtestBroker) CloseTrade(tradeID string, portion float64) error {
	if portion <= 0 || portion > 1 || math.IsNaN(portion) {
		return errors.Newf(errors.ErrCodeInvalidPortion, "portion must be in (0, 1], got %v", portion)
	}

	trade := b.openTradeByID(tradeID)
	if trade == nil {
		return errors.Newf(errors.ErrCodeTradeNotFound, "no open trade with id %s", tradeID)
	}

	order := &types.Order{
		Code:          trade.Code,
		Size:          -portion * trade.Size,
		Kind:          types.OrderKindPlain,
		Intent:        types.OrderIntentReduce,
		ReduceTradeID: trade.ID,
		Tag:           trade.Tag,
	}

	_, err := b.newOrder(order)

	return err
}

// ClosePosition implements types.PositionCloser: proportional closes across
// every open trade of the instrument. An empty code closes all instruments.
func (b *backtestBroker) ClosePosition(code string, portion float64) error {
	for _, trade := range b.snapshotOpen() {
		if code != "" && trade.Code != code {
			continue
		}

		if err := b.CloseTrade(trade.ID, portion); err != nil {
			return err
		}
	}

	return nil
}

// next runs one bar's settlement: bracket triggers, then plain orders, then
// the equity mark. Exactly one equity point is appended per call.
func (b *backtestBroker) next(t time.Time, stepIndex int) error {
	b.processContingent(t, stepIndex)
	b.processPending(t, stepIndex)
	b.markEquity(t)

	return nil
}

// processContingent evaluates stop-loss and take-profit children against the
// bar that just became visible. Stop-loss wins when both trigger within the
// same bar; the surviving sibling is cancelled when a trade fully closes.
func (b *backtestBroker) processContingent(t time.Time, stepIndex int) {
	children := make(map[string][]*types.Order)

	for _, order := range b.snapshotPending() {
		if order.Kind != types.OrderKindContingent {
			continue
		}

		if b.openTradeByID(order.ParentTradeID) == nil {
			// Parent already gone by other means
			b.removePending(order.ID)
			order.Status = types.OrderStatusCancelled

			continue
		}

		children[order.ParentTradeID] = append(children[order.ParentTradeID], order)
	}

	for _, trade := range b.snapshotOpen() {
		orders := children[trade.ID]
		if len(orders) == 0 {
			continue
		}

		bar, ok := b.view.barAt(trade.Code, t)
		if !ok {
			continue
		}

		var slOrder, tpOrder *types.Order

		for _, order := range orders {
			if order.Status != types.OrderStatusPending || order.PlacedAtIndex >= stepIndex {
				continue
			}

			if order.Stop.IsSome() {
				slOrder = order
			} else if order.Limit.IsSome() {
				tpOrder = order
			}
		}

		long := trade.Size > 0

		slHit := false
		if slOrder != nil {
			sl := slOrder.Stop.Unwrap()
			if long {
				slHit = bar.Low <= sl
			} else {
				slHit = bar.High >= sl
			}
		}

		tpHit := false
		if tpOrder != nil {
			tp := tpOrder.Limit.Unwrap()
			if long {
				tpHit = bar.High >= tp
			} else {
				tpHit = bar.Low <= tp
			}
		}

		switch {
		case slHit:
			sl := slOrder.Stop.Unwrap()

			// Worse-for-holder tie-break: the stop-loss executes and the
			// take-profit never fires on this bar.
			var price float64
			if long {
				price = math.Min(bar.Open, sl)
			} else {
				price = math.Max(bar.Open, sl)
			}

			b.fillContingent(slOrder, trade, price, t, stepIndex)
		case tpHit:
			tp := tpOrder.Limit.Unwrap()

			var price float64
			if long {
				price = math.Max(bar.Open, tp)
			} else {
				price = math.Min(bar.Open, tp)
			}

			b.fillContingent(tpOrder, trade, price, t, stepIndex)
		}
	}
}

func (b *backtestBroker) fillContingent(order *types.Order, trade *types.Trade, price float64, t time.Time, stepIndex int) {
	b.removePending(order.ID)
	order.Status = types.OrderStatusFilled
	order.FillPrice = optional.Some(price)
	order.FilledAt = optional.Some(t)

	exitFee := b.fee.Calculate(trade.Size, price)
	b.settleReduce(trade, trade.Size, price, t, stepIndex, exitFee)
}

// processPending walks the plain order book in submission order and fills
// whatever the bar at t makes eligible. Orders for instruments without a bar
// at t stay pending untouched.
func (b *backtestBroker) processPending(t time.Time, stepIndex int) {
	for _, order := range b.snapshotPending() {
		if order.Status != types.OrderStatusPending || order.Kind != types.OrderKindPlain {
			continue
		}

		bar, ok := b.view.barAt(order.Code, t)
		if !ok {
			continue
		}

		pureMarket := order.Limit.IsNone() && order.Stop.IsNone()

		// Next-bar execution: orders placed at this step are not yet
		// eligible, except market orders under trade-on-close which fill at
		// the placement bar's close.
		if order.PlacedAtIndex >= stepIndex {
			if !(b.config.TradeOnClose && pureMarket && order.PlacedAtIndex == stepIndex) {
				continue
			}
		}

		price, filled := b.resolveFillPrice(order, bar, stepIndex)
		if !filled {
			continue
		}

		b.executeFill(order, price, t, stepIndex)
	}
}

// resolveFillPrice applies the stop/limit trigger rules against the bar and
// returns the raw fill price. A consumed stop trigger persists on the order
// even when a limit guard defers the fill to a later bar.
func (b *backtestBroker) resolveFillPrice(order *types.Order, bar types.Bar, stepIndex int) (float64, bool) {
	long := order.Size > 0

	stopLevel := math.NaN()

	if order.Stop.IsSome() {
		stop := order.Stop.Unwrap()

		stopHit := false
		if long {
			stopHit = bar.High >= stop
		} else {
			stopHit = bar.Low <= stop
		}

		if !stopHit {
			return 0, false
		}

		// The stop trigger converts the order into a market or limit order.
		stopLevel = stop
		order.Stop = optional.None[float64]()
	}

	if order.Limit.IsSome() {
		limit := order.Limit.Unwrap()

		limitHit := false
		if long {
			limitHit = bar.Low <= limit
		} else {
			limitHit = bar.High >= limit
		}

		// When stop and limit trigger within the same bar, pessimistically
		// assume the limit level traded before the stop armed the order.
		limitHitBeforeStop := limitHit && !math.IsNaN(stopLevel) &&
			((long && limit < stopLevel) || (!long && limit > stopLevel))

		if !limitHit || limitHitBeforeStop {
			return 0, false
		}

		base := bar.Open
		if !math.IsNaN(stopLevel) {
			base = stopLevel
		}

		if long {
			return math.Min(base, limit), true
		}

		return math.Max(base, limit), true
	}

	if !math.IsNaN(stopLevel) {
		// Stop without limit fills like a market order armed at the stop.
		if long {
			return math.Max(bar.Open, stopLevel), true
		}

		return math.Min(bar.Open, stopLevel), true
	}

	if b.config.TradeOnClose {
		if order.PlacedAtIndex == stepIndex {
			return bar.Close, true
		}

		// Placed between steps: fill at the close that was visible at
		// placement, the bar before this one.
		if row, ok := b.view.rowOf(order.Code, bar.Time); ok {
			if prev, ok := b.view.closeBefore(order.Code, row); ok {
				return prev, true
			}
		}

		return bar.Open, true
	}

	return bar.Open, true
}

// executeFill settles a triggered order: reduce orders shrink their trade,
// opening orders first net against opposite open trades and only the
// remainder opens new exposure subject to the margin check.
func (b *backtestBroker) executeFill(order *types.Order, price float64, t time.Time, stepIndex int) {
	if order.Intent == types.OrderIntentReduce {
		b.executeReduceFill(order, price, t, stepIndex)

		return
	}

	size := order.Size
	adjPrice := utils.AdjustedPrice(price, b.config.Spread, size > 0)

	if utils.IsFractionSize(size) {
		units := utils.UnitsForFraction(math.Abs(size), b.marginAvailable(), b.config.Leverage(), adjPrice)
		if units == 0 {
			b.removePending(order.ID)
			order.Status = types.OrderStatusRejected
			b.reject(order, types.RejectReasonZeroSize)

			return
		}

		size = math.Copysign(units, size)
	}

	// Net against opposite-direction open trades first, oldest first.
	// Netting closes settle at the raw price; the spread adjustment applies
	// to the opening leg only.
	need := size

	var closes []closeSlice

	for _, trade := range b.snapshotOpen() {
		if need == 0 {
			break
		}

		if trade.Code != order.Code || trade.Size*need > 0 {
			continue
		}

		if math.Abs(need) >= math.Abs(trade.Size) {
			closes = append(closes, closeSlice{trade: trade, closedSize: trade.Size})
			need += trade.Size
		} else {
			closes = append(closes, closeSlice{trade: trade, closedSize: -need})
			need = 0
		}
	}

	if len(closes) > 0 {
		total := 0.0
		for _, slice := range closes {
			total += slice.closedSize
		}

		exitFeeTotal := b.fee.Calculate(total, price)

		perUnit := 0.0
		if total != 0 {
			perUnit = exitFeeTotal / math.Abs(total)
		}

		for _, slice := range closes {
			b.settleReduce(slice.trade, slice.closedSize, price, t, stepIndex, perUnit*math.Abs(slice.closedSize))
		}
	}

	if need != 0 {
		// New exposure beyond margin-adjusted buying power is discarded as a
		// whole; executed netting closes stand.
		if math.Abs(need)*adjPrice > b.marginAvailable()*b.config.Leverage() {
			b.removePending(order.ID)

			if len(closes) == 0 {
				order.Status = types.OrderStatusRejected
			} else {
				order.Status = types.OrderStatusFilled
				order.FillPrice = optional.Some(price)
				order.FilledAt = optional.Some(t)
			}

			b.reject(order, types.RejectReasonInsufficientMargin)

			return
		}

		b.openTrade(order, need, adjPrice, t, stepIndex)

		b.removePending(order.ID)
		order.Status = types.OrderStatusFilled
		order.FillPrice = optional.Some(adjPrice)
		order.FilledAt = optional.Some(t)

		return
	}

	b.removePending(order.ID)
	order.Status = types.OrderStatusFilled
	order.FillPrice = optional.Some(price)
	order.FilledAt = optional.Some(t)
}

func (b *backtestBroker) executeReduceFill(order *types.Order, price float64, t time.Time, stepIndex int) {
	trade := b.openTradeByID(order.ReduceTradeID)
	if trade == nil {
		// Trade already closed by other means
		b.removePending(order.ID)
		order.Status = types.OrderStatusCancelled

		return
	}

	closedSize := math.Copysign(math.Min(math.Abs(trade.Size), math.Abs(order.Size)), trade.Size)
	exitFee := b.fee.Calculate(closedSize, price)

	b.settleReduce(trade, closedSize, price, t, stepIndex, exitFee)

	b.removePending(order.ID)
	order.Status = types.OrderStatusFilled
	order.FillPrice = optional.Some(price)
	order.FilledAt = optional.Some(t)
}

func (b *backtestBroker) openTrade(order *types.Order, size, adjPrice float64, t time.Time, stepIndex int) {
	openFee := b.fee.Calculate(size, adjPrice)

	b.cash -= size*adjPrice + openFee
	b.totalFees += openFee

	trade := &types.Trade{
		ID:              uuid.New().String(),
		Code:            order.Code,
		Size:            size,
		InitialSize:     size,
		EntryPrice:      adjPrice,
		EntryTime:       t,
		EntryIndex:      stepIndex,
		EntryCommission: openFee,
		StopLoss:        order.StopLoss,
		TakeProfit:      order.TakeProfit,
		Tag:             order.Tag,
	}
	trade.Bind(b)

	b.open = append(b.open, trade)
	b.spawnContingent(trade, t, stepIndex)

	b.log.Debug("Trade opened",
		zap.String("id", trade.ID),
		zap.String("code", trade.Code),
		zap.Float64("size", trade.Size),
		zap.Float64("entry_price", trade.EntryPrice),
	)

	event := types.TradeEventSell
	if size > 0 {
		event = types.TradeEventBuy
	}

	if b.onTradeOpen != nil {
		b.onTradeOpen(event, *trade)
	}
}

// spawnContingent books the bracket children for a trade that just opened.
// The stop-loss child carries the stop price, the take-profit child the
// limit price; both reduce the parent's full remaining size when they fire.
func (b *backtestBroker) spawnContingent(trade *types.Trade, t time.Time, stepIndex int) {
	book := func(limit, stop optional.Option[float64]) {
		order := &types.Order{
			ID:            uuid.New().String(),
			Code:          trade.Code,
			Size:          -trade.Size,
			Limit:         limit,
			Stop:          stop,
			Kind:          types.OrderKindContingent,
			Intent:        types.OrderIntentReduce,
			ParentTradeID: trade.ID,
			ReduceTradeID: trade.ID,
			Tag:           trade.Tag,
			Status:        types.OrderStatusPending,
			PlacedAt:      t,
			PlacedAtIndex: stepIndex,
		}
		order.Bind(b)

		b.pending = append(b.pending, order)
		b.allOrders = append(b.allOrders, order)
	}

	if trade.StopLoss.IsSome() {
		book(optional.None[float64](), trade.StopLoss)
	}

	if trade.TakeProfit.IsSome() {
		book(trade.TakeProfit, optional.None[float64]())
	}
}

// settleReduce applies one reducing fill to a trade: realized P&L net of the
// pro-rata entry commission and the exit fee, cash settlement at the raw
// price, and the move to the closed ledger when size reaches exactly zero.
func (b *backtestBroker) settleReduce(trade *types.Trade, closedSize, price float64, t time.Time, stepIndex int, exitFee float64) {
	entryFeeShare := 0.0
	if trade.Size != 0 {
		entryFeeShare = trade.EntryCommission * math.Abs(closedSize) / math.Abs(trade.Size)
	}

	b.cash += closedSize*price - exitFee
	b.totalFees += exitFee

	trade.Size -= closedSize
	trade.EntryCommission -= entryFeeShare
	trade.PL += closedSize*(price-trade.EntryPrice) - entryFeeShare - exitFee

	if denom := math.Abs(trade.InitialSize) * trade.EntryPrice; denom != 0 {
		trade.PLPct = trade.PL / denom
	}

	if trade.Size == 0 {
		trade.ExitPrice = optional.Some(price)
		trade.ExitTime = optional.Some(t)
		trade.ExitIndex = optional.Some(stepIndex)

		b.removeOpenTrade(trade.ID)
		b.closed = append(b.closed, trade)
		b.cancelContingentFor(trade.ID)

		b.log.Debug("Trade closed",
			zap.String("id", trade.ID),
			zap.Float64("pl", trade.PL),
			zap.Float64("exit_price", price),
		)
	}
}

// finalizeOpenTrades force-closes every open trade at its instrument's last
// visible close. The closes are recorded as filled reduce orders so the
// submission ledger stays complete.
func (b *backtestBroker) finalizeOpenTrades(t time.Time, stepIndex int) {
	for _, trade := range b.snapshotOpen() {
		price, ok := b.view.lastVisibleClose(trade.Code)
		if !ok {
			continue
		}

		order := &types.Order{
			ID:            uuid.New().String(),
			Code:          trade.Code,
			Size:          -trade.Size,
			Kind:          types.OrderKindPlain,
			Intent:        types.OrderIntentReduce,
			ReduceTradeID: trade.ID,
			Tag:           trade.Tag,
			Status:        types.OrderStatusFilled,
			PlacedAt:      b.now,
			PlacedAtIndex: b.placementIndex,
			FillPrice:     optional.Some(price),
			FilledAt:      optional.Some(t),
		}
		b.allOrders = append(b.allOrders, order)

		exitFee := b.fee.Calculate(trade.Size, price)
		b.settleReduce(trade, trade.Size, price, t, stepIndex, exitFee)
	}

	// The final equity point reflects the forced closes.
	if len(b.equity) > 0 {
		b.equity[len(b.equity)-1] = b.equityNow()
	}
}

func (b *backtestBroker) markEquity(t time.Time) {
	b.equity = append(b.equity, b.equityNow())
	b.equityTime = append(b.equityTime, t)
}

// equityNow is cash plus the mark-to-market value of all open trades at each
// instrument's last visible close.
func (b *backtestBroker) equityNow() float64 {
	equity := b.cash

	for _, trade := range b.open {
		if mark, ok := b.view.lastVisibleClose(trade.Code); ok {
			equity += trade.Size * mark
		}
	}

	return equity
}

func (b *backtestBroker) marginUsed() float64 {
	used := 0.0

	for _, trade := range b.open {
		if mark, ok := b.view.lastVisibleClose(trade.Code); ok {
			used += math.Abs(trade.Size) * mark * b.config.Margin
		}
	}

	return used
}

func (b *backtestBroker) marginAvailable() float64 {
	return math.Max(0, b.equityNow()-b.marginUsed())
}

// positionOf derives the aggregate of open trades for one instrument; an
// empty code aggregates across all instruments.
func (b *backtestBroker) positionOf(code string) types.Position {
	size := 0.0
	pl := 0.0
	entryNotional := 0.0

	for _, trade := range b.open {
		if code != "" && trade.Code != code {
			continue
		}

		size += trade.Size
		entryNotional += math.Abs(trade.Size) * trade.EntryPrice

		if mark, ok := b.view.lastVisibleClose(trade.Code); ok {
			pl += trade.UnrealizedPL(mark)
		}
	}

	plPct := 0.0
	if entryNotional != 0 {
		plPct = pl / entryNotional
	}

	return types.NewPosition(code, size, pl, plPct, b)
}

func (b *backtestBroker) accountInfo() types.AccountInfo {
	realized := 0.0
	for _, trade := range b.closed {
		realized += trade.PL
	}

	unrealized := 0.0

	for _, trade := range b.open {
		realized += trade.PL

		if mark, ok := b.view.lastVisibleClose(trade.Code); ok {
			unrealized += trade.UnrealizedPL(mark)
		}
	}

	return types.AccountInfo{
		Balance:       b.cash,
		Equity:        b.equityNow(),
		BuyingPower:   b.marginAvailable() * b.config.Leverage(),
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		TotalFees:     b.totalFees,
		MarginUsed:    b.marginUsed(),
	}
}

func (b *backtestBroker) reject(order *types.Order, reason string) {
	b.log.Debug("Order dropped",
		zap.String("id", order.ID),
		zap.String("code", order.Code),
		zap.String("reason", reason),
	)

	if b.onReject != nil {
		b.onReject(*order, reason)
	}
}

func (b *backtestBroker) openTradeByID(tradeID string) *types.Trade {
	for _, trade := range b.open {
		if trade.ID == tradeID {
			return trade
		}
	}

	return nil
}

func (b *backtestBroker) cancelContingentFor(tradeID string) {
	for _, order := range b.snapshotPending() {
		if order.Kind == types.OrderKindContingent && order.ParentTradeID == tradeID {
			b.removePending(order.ID)
			order.Status = types.OrderStatusCancelled
		}
	}
}

func (b *backtestBroker) removePending(orderID string) bool {
	for i, order := range b.pending {
		if order.ID == orderID {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)

			return true
		}
	}

	return false
}

func (b *backtestBroker) removeOpenTrade(tradeID string) {
	for i, trade := range b.open {
		if trade.ID == tradeID {
			b.open = append(b.open[:i], b.open[i+1:]...)

			return
		}
	}
}

func (b *backtestBroker) snapshotPending() []*types.Order {
	snapshot := make([]*types.Order, len(b.pending))
	copy(snapshot, b.pending)

	return snapshot
}

func (b *backtestBroker) snapshotOpen() []*types.Trade {
	snapshot := make([]*types.Trade, len(b.open))
	copy(snapshot, b.open)

	return snapshot
}
