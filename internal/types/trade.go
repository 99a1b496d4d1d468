package types

import (
	"math"
	"time"

	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/pkg/errors"
)

// TradeCloser enqueues a reducing order for an open trade.
// Implemented by the broker; trades hold it so Close works standalone.
type TradeCloser interface {
	CloseTrade(tradeID string, portion float64) error
}

// Trade is an open position slice created when an order fills. It is owned
// exclusively by the broker's open-trade list while active and moves to the
// closed ledger when its size reaches exactly zero. Partial closes shrink
// Size in place and accumulate realized P&L; the trade only becomes closed
// on full exit.
type Trade struct {
	ID   string `yaml:"id" json:"id"`
	Code string `yaml:"code" json:"code"`
	// Size is signed and mutates on partial closes. InitialSize keeps the
	// fill size for P&L percentage denominators.
	Size        float64 `yaml:"size" json:"size"`
	InitialSize float64 `yaml:"initial_size" json:"initial_size"`

	EntryPrice float64   `yaml:"entry_price" json:"entry_price"`
	EntryTime  time.Time `yaml:"entry_time" json:"entry_time"`
	EntryIndex int       `yaml:"entry_index" json:"entry_index"`
	// EntryCommission is the commission still attributable to the open
	// remainder; partial closes consume it pro-rata.
	EntryCommission float64 `yaml:"entry_commission" json:"entry_commission"`

	// StopLoss and TakeProfit are propagated from the originating order.
	StopLoss   optional.Option[float64] `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit optional.Option[float64] `yaml:"take_profit" json:"take_profit"`
	Tag        string                   `yaml:"tag" json:"tag"`

	// Exit fields are set once Size reaches zero. ExitPrice is the price of
	// the final reducing fill.
	ExitPrice optional.Option[float64]   `yaml:"exit_price" json:"exit_price"`
	ExitTime  optional.Option[time.Time] `yaml:"exit_time" json:"exit_time"`
	ExitIndex optional.Option[int]       `yaml:"exit_index" json:"exit_index"`

	// PL accumulates realized profit net of entry and exit commissions as
	// reducing fills settle. PLPct is PL relative to the initial entry
	// notional, as a fraction.
	PL    float64 `yaml:"pl" json:"pl"`
	PLPct float64 `yaml:"pl_pct" json:"pl_pct"`

	closer TradeCloser
}

// IsLong reports whether the trade is long.
func (t *Trade) IsLong() bool {
	return t.Size > 0 || (t.Size == 0 && t.InitialSize > 0)
}

// IsShort reports whether the trade is short.
func (t *Trade) IsShort() bool {
	return t.Size < 0 || (t.Size == 0 && t.InitialSize < 0)
}

// IsClosed reports whether the trade has fully exited.
func (t *Trade) IsClosed() bool {
	return t.ExitTime.IsSome()
}

// UnrealizedPL is the open remainder's profit at the given mark price,
// gross of the entry commission still held against it.
func (t *Trade) UnrealizedPL(mark float64) float64 {
	return t.Size * (mark - t.EntryPrice)
}

// UnrealizedPLPct is UnrealizedPL relative to the open entry notional.
func (t *Trade) UnrealizedPLPct(mark float64) float64 {
	notional := math.Abs(t.Size) * t.EntryPrice
	if notional == 0 {
		return 0
	}

	return t.UnrealizedPL(mark) / notional
}

// Value is the open remainder's absolute notional at the given mark price.
func (t *Trade) Value(mark float64) float64 {
	return math.Abs(t.Size) * mark
}

// HoldingTime is the time between entry and exit for closed trades and zero
// otherwise.
func (t *Trade) HoldingTime() time.Duration {
	if exit, err := t.ExitTime.Take(); err == nil {
		return exit.Sub(t.EntryTime)
	}

	return 0
}

// Bind attaches the broker's closer so Close can enqueue reducing orders.
// Called by the broker when the opening fill creates the trade.
func (t *Trade) Bind(c TradeCloser) {
	t.closer = c
}

// Close enqueues an order reducing the trade by portion of its current size.
// The trade is not mutated here: the reduction settles when that order fills
// on a subsequent bar, so every position change flows through the matching
// path. Portion must be in (0, 1]; 1 closes the full remainder.
func (t *Trade) Close(portion float64) error {
	if portion <= 0 || portion > 1 || math.IsNaN(portion) {
		return errors.Newf(errors.ErrCodeInvalidPortion, "portion must be in (0, 1], got %v", portion)
	}

	if t.IsClosed() {
		return errors.Newf(errors.ErrCodeTradeAlreadyClosed, "trade %s is already closed", t.ID)
	}

	if t.closer == nil {
		return errors.New(errors.ErrCodeInternal, "trade is not bound to a broker")
	}

	return t.closer.CloseTrade(t.ID, portion)
}
