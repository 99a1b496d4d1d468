package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidOrder, "order size must be non-zero")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidOrder, err.Code)
	suite.Equal("order size must be non-zero", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeUnknownInstrument, "no series loaded for code %s", "AAPL")
	suite.NotNil(err)
	suite.Equal(ErrCodeUnknownInstrument, err.Code)
	suite.Equal("no series loaded for code AAPL", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestWrapError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeStorageFailed, "failed to insert trade", cause)
	suite.NotNil(err)
	suite.Equal(ErrCodeStorageFailed, err.Code)
	suite.Equal("failed to insert trade", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("underlying error")
	err := Wrapf(ErrCodeDataReadFailed, cause, "failed to read bars for code: %s", "AAPL")
	suite.NotNil(err)
	suite.Equal(ErrCodeDataReadFailed, err.Code)
	suite.Equal("failed to read bars for code: AAPL", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestErrorString() {
	err := New(ErrCodeInvalidConfig, "initial cash must be positive")
	suite.Equal("[100] initial cash must be positive", err.Error())
}

func (suite *ErrorTestSuite) TestErrorStringWithCause() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeInvalidSeries, "series validation failed", cause)
	suite.Equal("[200] series validation failed: underlying error", err.Error())
}

func (suite *ErrorTestSuite) TestUnwrap() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeInvalidSeries, "series validation failed", cause)
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestUnwrapNil() {
	err := New(ErrCodeInvalidOrder, "order size must be non-zero")
	suite.Nil(err.Unwrap())
}

func (suite *ErrorTestSuite) TestGetCode() {
	err := New(ErrCodeInvalidOrder, "order size must be non-zero")
	suite.Equal(ErrCodeInvalidOrder, GetCode(err))
}

func (suite *ErrorTestSuite) TestGetCodeFromWrapped() {
	cause := New(ErrCodeInvalidSeries, "series validation failed")
	err := Wrap(ErrCodeNoData, "engine has no data", cause)
	// GetCode should return the outermost error's code
	suite.Equal(ErrCodeNoData, GetCode(err))
}

func (suite *ErrorTestSuite) TestGetCodeFromPlainError() {
	err := errors.New("standard error")
	suite.Equal(ErrCodeUnknown, GetCode(err))
}

func (suite *ErrorTestSuite) TestHasCode() {
	err := New(ErrCodeInvalidOrder, "order size must be non-zero")
	suite.True(HasCode(err, ErrCodeInvalidOrder))
	suite.False(HasCode(err, ErrCodeInvalidSeries))
}

func (suite *ErrorTestSuite) TestIsError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeInvalidSeries, "series validation failed", cause)
	suite.True(Is(err, cause))
}

func (suite *ErrorTestSuite) TestAsError() {
	err := New(ErrCodeInvalidOrder, "order size must be non-zero")
	var typedErr *Error
	suite.True(As(err, &typedErr))
	suite.Equal(ErrCodeInvalidOrder, typedErr.Code)
}

func (suite *ErrorTestSuite) TestErrorCodeValues() {
	// Verify some key error codes have expected values
	suite.Equal(ErrorCode(1), ErrCodeUnknown)
	suite.Equal(ErrorCode(100), ErrCodeInvalidConfig)
	suite.Equal(ErrorCode(200), ErrCodeInvalidSeries)
	suite.Equal(ErrorCode(300), ErrCodeNotStarted)
	suite.Equal(ErrorCode(400), ErrCodeInvalidOrder)
	suite.Equal(ErrorCode(500), ErrCodeFillFailed)
	suite.Equal(ErrorCode(600), ErrCodeInvalidRiskFreeRate)
	suite.Equal(ErrorCode(700), ErrCodeStorageFailed)
	suite.Equal(ErrorCode(800), ErrCodeStrategyFailed)
}
