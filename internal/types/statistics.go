package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradeHoldingTime struct {
	// Minimum holding time of a closed trade in seconds
	Min int `yaml:"min" json:"min"`
	// Maximum holding time of a closed trade in seconds
	Max int `yaml:"max" json:"max"`
	// Average holding time of a closed trade in seconds
	Avg int `yaml:"avg" json:"avg"`
}

type TradeResult struct {
	// Count of closed trades. Trades still open at run end are excluded
	// from every trade-count statistic.
	NumberOfTrades int `yaml:"number_of_trades" json:"number_of_trades"`
	// Count of closed trades with positive net P&L.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades" json:"number_of_winning_trades"`
	// Count of closed trades with negative net P&L.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades" json:"number_of_losing_trades"`
	// Win rate in percent. NaN when there are no closed trades.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// Best, worst and average trade return in percent of entry notional.
	// NaN when there are no closed trades.
	BestTradePct  float64 `yaml:"best_trade_pct" json:"best_trade_pct"`
	WorstTradePct float64 `yaml:"worst_trade_pct" json:"worst_trade_pct"`
	AvgTradePct   float64 `yaml:"avg_trade_pct" json:"avg_trade_pct"`
}

type EquitySummary struct {
	Final float64 `yaml:"final" json:"final"`
	Peak  float64 `yaml:"peak" json:"peak"`
	// ReturnPct is the whole-run return in percent of starting equity.
	ReturnPct float64 `yaml:"return_pct" json:"return_pct"`
	// AnnualizedReturnPct compounds the geometric mean of per-bar returns
	// over the inferred number of bars per year.
	AnnualizedReturnPct float64 `yaml:"annualized_return_pct" json:"annualized_return_pct"`
	// SharpeRatio is (annualized return - risk-free rate) over annualized
	// volatility of per-bar returns. NaN when volatility is zero.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
}

type DrawdownSummary struct {
	// MaxDrawdownPct is the deepest peak-to-trough decline in percent
	// (negative). Zero when the equity curve never declines.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	// AvgDrawdownPct averages the trough of each drawdown episode (negative).
	// NaN when there are no episodes.
	AvgDrawdownPct float64 `yaml:"avg_drawdown_pct" json:"avg_drawdown_pct"`
	// MaxDrawdownDuration is the longest time from a peak to recovery; an
	// unrecovered final episode counts to the end of the run.
	MaxDrawdownDuration time.Duration `yaml:"-" json:"max_drawdown_duration"`
}

// MarshalYAML emits the drawdown duration as a human-readable string rather
// than nanoseconds.
func (d DrawdownSummary) MarshalYAML() (interface{}, error) {
	type plain struct {
		MaxDrawdownPct      float64 `yaml:"max_drawdown_pct"`
		AvgDrawdownPct      float64 `yaml:"avg_drawdown_pct"`
		MaxDrawdownDuration string  `yaml:"max_drawdown_duration"`
	}

	return plain{
		MaxDrawdownPct:      d.MaxDrawdownPct,
		AvgDrawdownPct:      d.AvgDrawdownPct,
		MaxDrawdownDuration: d.MaxDrawdownDuration.String(),
	}, nil
}

// EquityPoint is one sample of the retained equity curve: the equity value
// recorded for one stepped bar and its drawdown relative to the running peak.
type EquityPoint struct {
	Time        time.Time `yaml:"time" json:"time"`
	Equity      float64   `yaml:"equity" json:"equity"`
	DrawdownPct float64   `yaml:"drawdown_pct" json:"drawdown_pct"`
}

// StatsReport is the end-of-run summary produced by the statistics
// aggregator. The scalar fields serialize to YAML; the retained curves are
// exported separately (the recorder writes them to Parquet).
type StatsReport struct {
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
	// Bars is the number of bars actually stepped.
	Bars int `yaml:"bars" json:"bars"`

	TradeResult TradeResult      `yaml:"trade_result" json:"trade_result"`
	Equity      EquitySummary    `yaml:"equity" json:"equity"`
	Drawdown    DrawdownSummary  `yaml:"drawdown" json:"drawdown"`
	HoldingTime TradeHoldingTime `yaml:"trade_holding_time" json:"trade_holding_time"`

	// TotalFees is the sum of all commissions attributed to closed trades.
	TotalFees float64 `yaml:"total_fees" json:"total_fees"`
	// OpenTradesAtEnd counts trades left open at run end (zero when
	// finalize-trades is enabled).
	OpenTradesAtEnd int     `yaml:"open_trades_at_end" json:"open_trades_at_end"`
	RiskFreeRate    float64 `yaml:"risk_free_rate" json:"risk_free_rate"`

	// EquityCurve retains one point per stepped bar for later inspection.
	EquityCurve []EquityPoint `yaml:"-" json:"equity_curve"`
}

// WriteStatsReport writes the scalar summary to a YAML file.
func WriteStatsReport(path string, report StatsReport) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal stats report to YAML: %w", err)
	}

	// Write the YAML data to the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats report to file: %w", err)
	}

	return nil
}
