package types

import (
	"math"
	"sort"
	"time"

	"github.com/backcast-lab/backcast/pkg/errors"
)

// Bar is one OHLCV observation for one instrument at one timestamp.
//
// The engine assumes high >= max(open, close) and low <= min(open, close).
// Violations are not rejected but produce undefined fill semantics.
type Bar struct {
	Code string    `yaml:"code" json:"code"`
	Time time.Time `yaml:"time" json:"time"`
	Open float64   `yaml:"open" json:"open"`
	High float64   `yaml:"high" json:"high"`
	Low  float64   `yaml:"low" json:"low"`
	// Close is the last traded price of the bar and the mark price used for
	// equity once the bar is visible.
	Close float64 `yaml:"close" json:"close"`
	// Volume is NaN when the feed does not provide it.
	Volume float64 `yaml:"volume" json:"volume"`
}

// HasVolume reports whether the bar carries a volume observation.
func (b Bar) HasVolume() bool {
	return !math.IsNaN(b.Volume)
}

// BarSeries is an ordered, time-indexed sequence of bars for one instrument
// with strictly increasing timestamps.
type BarSeries []Bar

// Len returns the number of bars in the series.
func (s BarSeries) Len() int {
	return len(s)
}

// First returns the earliest bar. The series must be non-empty.
func (s BarSeries) First() Bar {
	return s[0]
}

// Last returns the latest bar. The series must be non-empty.
func (s BarSeries) Last() Bar {
	return s[len(s)-1]
}

// NormalizeSeries validates raw bars for one instrument and returns a series
// safe for replay. It fills in the code on every bar, sorts by timestamp when
// the input is out of order (reported through the second return value so the
// caller can log a warning), and rejects empty input, NaN prices, and
// duplicate timestamps.
func NormalizeSeries(code string, bars []Bar) (BarSeries, bool, error) {
	if len(bars) == 0 {
		return nil, false, errors.Newf(errors.ErrCodeEmptySeries, "no bars for code %s", code)
	}

	series := make(BarSeries, len(bars))
	copy(series, bars)

	for i := range series {
		series[i].Code = code

		if math.IsNaN(series[i].Open) || math.IsNaN(series[i].High) ||
			math.IsNaN(series[i].Low) || math.IsNaN(series[i].Close) {
			return nil, false, errors.Newf(errors.ErrCodeInvalidPrice,
				"NaN price in bar %d for code %s", i, code)
		}
	}

	resorted := false

	if !sort.SliceIsSorted(series, func(i, j int) bool {
		return series[i].Time.Before(series[j].Time)
	}) {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Time.Before(series[j].Time)
		})

		resorted = true
	}

	for i := 1; i < len(series); i++ {
		if series[i].Time.Equal(series[i-1].Time) {
			return nil, resorted, errors.Newf(errors.ErrCodeDuplicateTimestamp,
				"duplicate timestamp %s for code %s", series[i].Time.Format(time.RFC3339), code)
		}
	}

	return series, resorted, nil
}
