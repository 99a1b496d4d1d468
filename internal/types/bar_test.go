package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/backcast-lab/backcast/pkg/errors"
)

type BarTestSuite struct {
	suite.Suite
}

func TestBarSuite(t *testing.T) {
	suite.Run(t, new(BarTestSuite))
}

func (suite *BarTestSuite) bar(day int, close float64) Bar {
	return Bar{
		Time:   time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:   close,
		High:   close + 1,
		Low:    close - 1,
		Close:  close,
		Volume: 1000,
	}
}

func (suite *BarTestSuite) TestHasVolume() {
	bar := suite.bar(1, 100)
	suite.True(bar.HasVolume())

	bar.Volume = math.NaN()
	suite.False(bar.HasVolume())
}

func (suite *BarTestSuite) TestNormalizeSortedSeries() {
	bars := []Bar{suite.bar(1, 100), suite.bar(2, 101), suite.bar(3, 102)}

	series, resorted, err := NormalizeSeries("AAPL", bars)
	suite.Require().NoError(err)
	suite.False(resorted)
	suite.Equal(3, series.Len())
	suite.Equal("AAPL", series.First().Code)
	suite.Equal("AAPL", series.Last().Code)
	suite.InDelta(102, series.Last().Close, 1e-9)
}

func (suite *BarTestSuite) TestNormalizeSortsUnsortedInput() {
	bars := []Bar{suite.bar(3, 102), suite.bar(1, 100), suite.bar(2, 101)}

	series, resorted, err := NormalizeSeries("AAPL", bars)
	suite.Require().NoError(err)
	suite.True(resorted)
	suite.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), series.First().Time)
	suite.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), series.Last().Time)

	// Input slice stays untouched
	suite.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].Time)
}

func (suite *BarTestSuite) TestNormalizeRejectsEmptySeries() {
	_, _, err := NormalizeSeries("AAPL", nil)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))
}

func (suite *BarTestSuite) TestNormalizeRejectsDuplicateTimestamps() {
	bars := []Bar{suite.bar(1, 100), suite.bar(1, 101)}

	_, _, err := NormalizeSeries("AAPL", bars)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDuplicateTimestamp))
}

func (suite *BarTestSuite) TestNormalizeRejectsNaNPrices() {
	tests := []struct {
		name   string
		mutate func(b *Bar)
	}{
		{name: "NaN open", mutate: func(b *Bar) { b.Open = math.NaN() }},
		{name: "NaN high", mutate: func(b *Bar) { b.High = math.NaN() }},
		{name: "NaN low", mutate: func(b *Bar) { b.Low = math.NaN() }},
		{name: "NaN close", mutate: func(b *Bar) { b.Close = math.NaN() }},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			bad := suite.bar(2, 101)
			tt.mutate(&bad)

			_, _, err := NormalizeSeries("AAPL", []Bar{suite.bar(1, 100), bad})
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeInvalidPrice))
		})
	}
}

func (suite *BarTestSuite) TestNormalizeAllowsNaNVolume() {
	bar := suite.bar(1, 100)
	bar.Volume = math.NaN()

	series, _, err := NormalizeSeries("AAPL", []Bar{bar})
	suite.Require().NoError(err)
	suite.False(series.First().HasVolume())
}
