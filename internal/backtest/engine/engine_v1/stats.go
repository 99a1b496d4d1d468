package engine

import (
	"math"
	"sort"
	"time"

	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// hoursPerYear annualizes per-bar returns from the inferred bar spacing.
// Calendar hours, not exchange sessions: intraday and daily series are both
// scaled by wall-clock time.
const hoursPerYear = 365.2425 * 24

// computeStats aggregates the closed-trade ledger and the equity history into
// the end-of-run report. It is a pure function of its inputs: an empty ledger
// produces NaN or zero statistics per field convention, and equity histories
// longer or shorter than the time index are truncated to the shorter length.
func computeStats(closed []*types.Trade, equity []float64, index []time.Time, riskFreeRate float64) (types.StatsReport, error) {
	if riskFreeRate < 0 || riskFreeRate >= 1 {
		return types.StatsReport{}, errors.Newf(errors.ErrCodeInvalidRiskFreeRate,
			"risk_free_rate must be in [0, 1), got %v", riskFreeRate)
	}

	n := len(equity)
	if len(index) < n {
		n = len(index)
	}

	equity = equity[:n]
	index = index[:n]

	report := types.StatsReport{
		Bars:         n,
		TradeResult:  tradeResult(closed),
		HoldingTime:  holdingTime(closed),
		RiskFreeRate: riskFreeRate,
	}

	if n == 0 {
		report.Equity = types.EquitySummary{
			Final:               math.NaN(),
			Peak:                math.NaN(),
			ReturnPct:           math.NaN(),
			AnnualizedReturnPct: math.NaN(),
			SharpeRatio:         math.NaN(),
		}
		report.Drawdown = types.DrawdownSummary{AvgDrawdownPct: math.NaN()}

		return report, nil
	}

	report.Start = index[0]
	report.End = index[n-1]

	dd := drawdownSeries(equity)
	report.Drawdown = drawdownSummary(dd, index)

	report.EquityCurve = make([]types.EquityPoint, n)
	for i := range equity {
		report.EquityCurve[i] = types.EquityPoint{
			Time:        index[i],
			Equity:      equity[i],
			DrawdownPct: -dd[i] * 100,
		}
	}

	report.Equity = equitySummary(equity, index, riskFreeRate)

	return report, nil
}

func tradeResult(closed []*types.Trade) types.TradeResult {
	result := types.TradeResult{
		NumberOfTrades: len(closed),
		WinRate:        math.NaN(),
		BestTradePct:   math.NaN(),
		WorstTradePct:  math.NaN(),
		AvgTradePct:    math.NaN(),
	}

	if len(closed) == 0 {
		return result
	}

	returns := make([]float64, 0, len(closed))

	for _, trade := range closed {
		if trade.PL > 0 {
			result.NumberOfWinningTrades++
		} else if trade.PL < 0 {
			result.NumberOfLosingTrades++
		}

		returns = append(returns, trade.PLPct)
	}

	result.WinRate = float64(result.NumberOfWinningTrades) / float64(len(closed)) * 100

	best, worst := returns[0], returns[0]
	for _, r := range returns[1:] {
		best = math.Max(best, r)
		worst = math.Min(worst, r)
	}

	result.BestTradePct = best * 100
	result.WorstTradePct = worst * 100
	result.AvgTradePct = geometricMean(returns) * 100

	return result
}

func holdingTime(closed []*types.Trade) types.TradeHoldingTime {
	if len(closed) == 0 {
		return types.TradeHoldingTime{}
	}

	minSec := math.MaxInt
	maxSec := 0
	total := 0

	for _, trade := range closed {
		sec := int(trade.HoldingTime().Seconds())

		if sec < minSec {
			minSec = sec
		}

		if sec > maxSec {
			maxSec = sec
		}

		total += sec
	}

	return types.TradeHoldingTime{
		Min: minSec,
		Max: maxSec,
		Avg: total / len(closed),
	}
}

func equitySummary(equity []float64, index []time.Time, riskFreeRate float64) types.EquitySummary {
	final := equity[len(equity)-1]

	peak := equity[0]
	for _, e := range equity[1:] {
		peak = math.Max(peak, e)
	}

	summary := types.EquitySummary{
		Final:               final,
		Peak:                peak,
		ReturnPct:           (final - equity[0]) / equity[0] * 100,
		AnnualizedReturnPct: math.NaN(),
		SharpeRatio:         math.NaN(),
	}

	returns := perBarReturns(equity)
	spacing := medianSpacing(index)

	if len(returns) == 0 || spacing <= 0 {
		return summary
	}

	gmean := geometricMean(returns)
	periods := hoursPerYear * float64(time.Hour) / float64(spacing)

	summary.AnnualizedReturnPct = (math.Pow(1+gmean, periods) - 1) * 100

	// Annualized volatility of per-bar returns via the lognormal moment
	// identity, sample variance for more than one observation.
	variance := 0.0
	if len(returns) > 1 {
		mean := 0.0
		for _, r := range returns {
			mean += r
		}

		mean /= float64(len(returns))

		for _, r := range returns {
			variance += (r - mean) * (r - mean)
		}

		variance /= float64(len(returns) - 1)
	}

	annVol := math.Sqrt(math.Pow(variance+(1+gmean)*(1+gmean), periods)-math.Pow(1+gmean, 2*periods)) * 100

	if annVol != 0 && !math.IsNaN(annVol) {
		summary.SharpeRatio = (summary.AnnualizedReturnPct - riskFreeRate*100) / annVol
	}

	return summary
}

// geometricMean compounds a returns series: NaN entries contribute zero
// return, and any single return at or below -100% collapses the compound
// result to zero rather than propagating a domain error. Empty input is NaN.
func geometricMean(returns []float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}

	logSum := 0.0

	for _, r := range returns {
		if math.IsNaN(r) {
			r = 0
		}

		factor := 1 + r
		if factor <= 0 {
			return 0
		}

		logSum += math.Log(factor)
	}

	return math.Exp(logSum/float64(len(returns))) - 1
}

func perBarReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}

	returns := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		returns[i-1] = equity[i]/equity[i-1] - 1
	}

	return returns
}

// drawdownSeries is the fractional decline from the running equity peak,
// zero at every new high. The first point is always zero.
func drawdownSeries(equity []float64) []float64 {
	dd := make([]float64, len(equity))

	peak := math.Inf(-1)
	for i, e := range equity {
		peak = math.Max(peak, e)
		dd[i] = 1 - e/peak
	}

	return dd
}

type drawdownEpisode struct {
	duration time.Duration
	peak     float64
}

// drawdownEpisodes splits the drawdown series at its recovery points (bars
// where dd is zero) and keeps every stretch longer than one bar, the final
// stretch counting to the end even when unrecovered.
func drawdownEpisodes(dd []float64, index []time.Time) []drawdownEpisode {
	if len(dd) == 0 {
		return nil
	}

	var zeros []int

	for i, v := range dd {
		if v == 0 {
			zeros = append(zeros, i)
		}
	}

	last := len(dd) - 1
	if len(zeros) == 0 || zeros[len(zeros)-1] != last {
		zeros = append(zeros, last)
	}

	var episodes []drawdownEpisode

	for k := 1; k < len(zeros); k++ {
		prev, cur := zeros[k-1], zeros[k]
		if cur <= prev+1 {
			continue
		}

		peak := 0.0
		for i := prev; i <= cur; i++ {
			peak = math.Max(peak, dd[i])
		}

		episodes = append(episodes, drawdownEpisode{
			duration: index[cur].Sub(index[prev]),
			peak:     peak,
		})
	}

	return episodes
}

func drawdownSummary(dd []float64, index []time.Time) types.DrawdownSummary {
	maxDD := 0.0
	for _, v := range dd {
		maxDD = math.Max(maxDD, v)
	}

	summary := types.DrawdownSummary{
		MaxDrawdownPct: -maxDD * 100,
		AvgDrawdownPct: math.NaN(),
	}

	episodes := drawdownEpisodes(dd, index)
	if len(episodes) == 0 {
		return summary
	}

	peakSum := 0.0

	for _, episode := range episodes {
		peakSum += episode.peak

		if episode.duration > summary.MaxDrawdownDuration {
			summary.MaxDrawdownDuration = episode.duration
		}
	}

	summary.AvgDrawdownPct = -peakSum / float64(len(episodes)) * 100

	return summary
}

func medianSpacing(index []time.Time) time.Duration {
	if len(index) < 2 {
		return 0
	}

	diffs := make([]time.Duration, len(index)-1)
	for i := 1; i < len(index); i++ {
		diffs[i-1] = index[i].Sub(index[i-1])
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })

	mid := len(diffs) / 2
	if len(diffs)%2 == 1 {
		return diffs[mid]
	}

	return (diffs[mid-1] + diffs[mid]) / 2
}
