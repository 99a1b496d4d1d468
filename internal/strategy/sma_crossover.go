package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/internal/backtest/engine"
	"github.com/backcast-lab/backcast/internal/indicator"
)

// Default crossover windows, applied when a period is not positive.
const (
	defaultShortPeriod = 5
	defaultLongPeriod  = 20
)

// entryFraction is the share of buying power committed on a buy signal.
const entryFraction = 0.95

// SMACrossover buys when the short moving average crosses above the long
// one and flattens the position when it crosses back below.
type SMACrossover struct {
	shortPeriod int
	longPeriod  int
	code        string
}

// NewSMACrossover creates an SMA crossover strategy with the given windows.
// Non-positive periods fall back to 5 and 20; an empty code resolves to the
// sole loaded instrument.
func NewSMACrossover(shortPeriod, longPeriod int, code string) *SMACrossover {
	if shortPeriod <= 0 {
		shortPeriod = defaultShortPeriod
	}

	if longPeriod <= 0 {
		longPeriod = defaultLongPeriod
	}

	return &SMACrossover{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		code:        code,
	}
}

// Name returns the name of the strategy.
func (s *SMACrossover) Name() string {
	return fmt.Sprintf("SMA_Cross_%d_%d", s.shortPeriod, s.longPeriod)
}

// OnBar evaluates the crossover against the visible bars and trades on the
// bar where the averages cross.
func (s *SMACrossover) OnBar(e engine.Engine) error {
	bars, err := e.Data(s.code)
	if err != nil {
		return err
	}

	// One bar beyond the long window so the previous averages exist too.
	if len(bars) <= s.longPeriod {
		return nil
	}

	shortMA := indicator.SMA(bars, s.shortPeriod).Unwrap()
	longMA := indicator.SMA(bars, s.longPeriod).Unwrap()

	prev := bars[:len(bars)-1]
	prevShortMA := indicator.SMA(prev, s.shortPeriod).Unwrap()
	prevLongMA := indicator.SMA(prev, s.longPeriod).Unwrap()

	position := e.PositionOf(s.code)

	// Buy signal: short MA crosses above long MA.
	if shortMA > longMA && prevShortMA <= prevLongMA && !position.IsLong() {
		if _, err := e.Buy(engine.TradeSpec{
			Code: s.code,
			Size: optional.Some(entryFraction),
		}); err != nil {
			return err
		}
	}

	// Sell signal: short MA crosses below long MA.
	if shortMA < longMA && prevShortMA >= prevLongMA && position.IsLong() {
		if err := position.Close(1.0); err != nil {
			return err
		}
	}

	return nil
}
