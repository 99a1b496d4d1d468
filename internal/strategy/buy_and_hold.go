package strategy

import (
	"github.com/backcast-lab/backcast/internal/backtest/engine"
)

// BuyAndHold enters the maximum affordable position on the first bar and
// holds it for the rest of the replay.
type BuyAndHold struct {
	code string
}

// NewBuyAndHold creates a buy-and-hold strategy for the given instrument.
// An empty code resolves to the sole loaded instrument.
func NewBuyAndHold(code string) *BuyAndHold {
	return &BuyAndHold{code: code}
}

// Name returns the name of the strategy.
func (s *BuyAndHold) Name() string {
	return "BuyAndHold"
}

// OnBar buys once at the first bar. The strategy keeps no state of its own,
// so rewinding and re-running the replay stays deterministic.
func (s *BuyAndHold) OnBar(e engine.Engine) error {
	if e.StepIndex() != 0 {
		return nil
	}

	_, err := e.Buy(engine.TradeSpec{Code: s.code})

	return err
}
