// Package indicator provides moving-average helpers computed over the bars
// visible to a strategy. Helpers return None until enough bars are visible,
// so strategies warm up without sentinel values.
package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/internal/types"
)

// SMA returns the simple moving average of the closing prices of the last
// period bars, or None when fewer than period bars are available.
func SMA(bars types.BarSeries, period int) optional.Option[float64] {
	if period <= 0 || len(bars) < period {
		return optional.None[float64]()
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}

	return optional.Some(sum / float64(period))
}

// EMA returns the exponential moving average of the closing prices. The
// average is seeded with the simple mean of the first period bars and then
// smoothed across the rest of the series with alpha = 2 / (period + 1),
// matching the pandas ewm convention with adjust=False. None when fewer
// than period bars are available.
func EMA(bars types.BarSeries, period int) optional.Option[float64] {
	if period <= 0 || len(bars) < period {
		return optional.None[float64]()
	}

	ema := 0.0
	for i := 0; i < period; i++ {
		ema += bars[i].Close
	}

	ema /= float64(period)

	alpha := 2.0 / float64(period+1)
	for i := period; i < len(bars); i++ {
		ema = bars[i].Close*alpha + ema*(1-alpha)
	}

	return optional.Some(ema)
}
