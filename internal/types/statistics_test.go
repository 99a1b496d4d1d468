package types

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type StatisticsTestSuite struct {
	suite.Suite
	tempDir string
}

func TestStatisticsSuite(t *testing.T) {
	suite.Run(t, new(StatisticsTestSuite))
}

func (suite *StatisticsTestSuite) SetupTest() {
	tempDir, err := os.MkdirTemp("", "statistics_test")
	suite.NoError(err)
	suite.tempDir = tempDir
}

func (suite *StatisticsTestSuite) TearDownTest() {
	os.RemoveAll(suite.tempDir)
}

func (suite *StatisticsTestSuite) sampleReport() StatsReport {
	return StatsReport{
		Start: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC),
		Bars:  62,
		TradeResult: TradeResult{
			NumberOfTrades:        10,
			NumberOfWinningTrades: 6,
			NumberOfLosingTrades:  4,
			WinRate:               60,
			BestTradePct:          8.2,
			WorstTradePct:         -3.1,
			AvgTradePct:           1.4,
		},
		Equity: EquitySummary{
			Final:               10840,
			Peak:                11020,
			ReturnPct:           8.4,
			AnnualizedReturnPct: 36.2,
			SharpeRatio:         1.21,
		},
		Drawdown: DrawdownSummary{
			MaxDrawdownPct:      -4.6,
			AvgDrawdownPct:      -1.8,
			MaxDrawdownDuration: 21 * 24 * time.Hour,
		},
		HoldingTime: TradeHoldingTime{
			Min: 86400,
			Max: 864000,
			Avg: 259200,
		},
		TotalFees:    42.5,
		RiskFreeRate: 0.02,
		EquityCurve: []EquityPoint{
			{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Equity: 10000, DrawdownPct: 0},
			{Time: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Equity: 10840, DrawdownPct: 0},
		},
	}
}

func (suite *StatisticsTestSuite) TestWriteStatsReport() {
	report := suite.sampleReport()
	path := filepath.Join(suite.tempDir, "stats.yaml")

	err := WriteStatsReport(path, report)
	suite.Require().NoError(err)

	data, err := os.ReadFile(path)
	suite.Require().NoError(err)

	var decoded map[string]any
	suite.Require().NoError(yaml.Unmarshal(data, &decoded))

	suite.Contains(decoded, "trade_result")
	suite.Contains(decoded, "equity")
	suite.Contains(decoded, "drawdown")

	// Curves stay out of the YAML summary
	suite.NotContains(decoded, "equity_curve")

	drawdown, ok := decoded["drawdown"].(map[string]any)
	suite.Require().True(ok)
	suite.Equal("504h0m0s", drawdown["max_drawdown_duration"])
}

func (suite *StatisticsTestSuite) TestWriteStatsReportWithNaNFields() {
	report := suite.sampleReport()
	report.TradeResult = TradeResult{
		WinRate:       math.NaN(),
		BestTradePct:  math.NaN(),
		WorstTradePct: math.NaN(),
		AvgTradePct:   math.NaN(),
	}
	report.Drawdown.MaxDrawdownPct = math.NaN()

	path := filepath.Join(suite.tempDir, "stats.yaml")
	suite.Require().NoError(WriteStatsReport(path, report))

	var decoded StatsReport

	data, err := os.ReadFile(path)
	suite.Require().NoError(err)
	suite.Require().NoError(yaml.Unmarshal(data, &decoded))
	suite.True(math.IsNaN(decoded.TradeResult.WinRate))
}

func (suite *StatisticsTestSuite) TestWriteStatsReportInvalidPath() {
	err := WriteStatsReport(filepath.Join(suite.tempDir, "missing", "stats.yaml"), suite.sampleReport())
	suite.Error(err)
}
