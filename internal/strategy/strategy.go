// Package strategy provides the built-in replay strategies and an adapter
// for driving the engine with a bare function.
package strategy

import (
	"github.com/backcast-lab/backcast/internal/backtest/engine"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// Strategy is the interface replay strategies implement.
type Strategy = engine.Strategy

// Func adapts a bare function to the Strategy interface.
type Func struct {
	name  string
	onBar func(e engine.Engine) error
}

// NewFunc wraps onBar as a named strategy.
func NewFunc(name string, onBar func(e engine.Engine) error) *Func {
	return &Func{
		name:  name,
		onBar: onBar,
	}
}

// Name returns the name of the strategy.
func (f *Func) Name() string {
	return f.name
}

// OnBar invokes the wrapped function.
func (f *Func) OnBar(e engine.Engine) error {
	if f.onBar == nil {
		return nil
	}

	return f.onBar(e)
}

// Builtin returns the named built-in strategy with default parameters.
func Builtin(name string) (Strategy, error) {
	switch name {
	case "buyhold":
		return NewBuyAndHold(""), nil
	case "sma-cross":
		return NewSMACrossover(0, 0, ""), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig,
			"unknown strategy %q, expected one of: buyhold, sma-cross", name)
	}
}
