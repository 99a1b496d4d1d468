package strategy

import (
	"context"

	"github.com/backcast-lab/backcast/internal/backtest/engine"
)

func (suite *StrategyTestSuite) TestSMACrossoverDefaults() {
	s := NewSMACrossover(0, 0, "")
	suite.Assert().Equal("SMA_Cross_5_20", s.Name())

	s = NewSMACrossover(2, 3, "AAPL")
	suite.Assert().Equal("SMA_Cross_2_3", s.Name())
}

func (suite *StrategyTestSuite) TestSMACrossoverRoundTrip() {
	// The short average crosses above the long one at the 120 bar and back
	// below at the 70 bar, producing one buy and one flattening close.
	e := suite.newArmedEngine(flatSeries(100, 90, 80, 120, 130, 70, 60))
	suite.Require().NoError(e.SetStrategy(NewSMACrossover(2, 3, "AAPL")))

	report, err := e.Run(context.Background(), engine.LifecycleCallbacks{})
	suite.Require().NoError(err)

	suite.Assert().Empty(e.Trades())

	closed := e.ClosedTrades()
	suite.Require().Len(closed, 1)

	// Entry fills at the bar after the buy signal, at that bar's open; the
	// 95% sizing buys 73 whole units of the 10000 starting cash at 130.
	suite.Assert().Equal(4, closed[0].EntryIndex)
	suite.Assert().InDelta(130.0, closed[0].EntryPrice, 1e-9)
	suite.Assert().InDelta(73.0, closed[0].InitialSize, 1e-9)

	suite.Assert().Equal(6, closed[0].ExitIndex.Unwrap())
	suite.Assert().InDelta(60.0, closed[0].ExitPrice.Unwrap(), 1e-9)
	suite.Assert().InDelta(-5110.0, closed[0].PL, 1e-9)

	suite.Assert().InDelta(4890.0, e.Cash(), 1e-9)
	suite.Assert().Equal(1, report.TradeResult.NumberOfTrades)
	suite.Assert().Equal(0, report.OpenTradesAtEnd)
}

func (suite *StrategyTestSuite) TestSMACrossoverDoesNotRebuyWhileLong() {
	// After the cross the averages stay ordered, so the strategy must not
	// stack a second entry while the position is open.
	e := suite.newArmedEngine(flatSeries(100, 90, 80, 120, 130, 140, 150))
	suite.Require().NoError(e.SetStrategy(NewSMACrossover(2, 3, "AAPL")))

	_, err := e.Run(context.Background(), engine.LifecycleCallbacks{})
	suite.Require().NoError(err)

	suite.Assert().Len(e.Trades(), 1)
	suite.Assert().Empty(e.ClosedTrades())
}

func (suite *StrategyTestSuite) TestSMACrossoverWarmUp() {
	e := suite.newArmedEngine(flatSeries(100, 110, 120))
	suite.Require().NoError(e.SetStrategy(NewSMACrossover(2, 3, "AAPL")))

	_, err := e.Run(context.Background(), engine.LifecycleCallbacks{})
	suite.Require().NoError(err)

	suite.Assert().Empty(e.Trades())
	suite.Assert().Empty(e.ClosedTrades())
	suite.Assert().Empty(e.Orders())
}
