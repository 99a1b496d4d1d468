package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown  ErrorCode = 1
	ErrCodeInternal ErrorCode = 2

	// Configuration errors (100-199)
	ErrCodeInvalidConfig         ErrorCode = 100
	ErrCodeConfigParseFailed     ErrorCode = 101
	ErrCodeSchemaVersionMismatch ErrorCode = 102

	// Data/series errors (200-299)
	ErrCodeInvalidSeries         ErrorCode = 200
	ErrCodeEmptySeries           ErrorCode = 201
	ErrCodeDuplicateTimestamp    ErrorCode = 202
	ErrCodeInvalidPrice          ErrorCode = 203
	ErrCodeDataSourceUnavailable ErrorCode = 204
	ErrCodeDataReadFailed        ErrorCode = 205
	ErrCodeUnknownInstrument     ErrorCode = 206

	// Engine lifecycle errors (300-399)
	ErrCodeNotStarted    ErrorCode = 300
	ErrCodeReentrantCall ErrorCode = 301
	ErrCodeNoData        ErrorCode = 302

	// Order errors (400-499)
	ErrCodeInvalidOrder        ErrorCode = 400
	ErrCodeInvalidPortion      ErrorCode = 401
	ErrCodeAmbiguousInstrument ErrorCode = 402
	ErrCodeInvalidSize         ErrorCode = 403
	ErrCodeTradeAlreadyClosed  ErrorCode = 404
	ErrCodeTradeNotFound       ErrorCode = 405

	// Broker errors (500-599)
	ErrCodeFillFailed      ErrorCode = 500
	ErrCodeMarkUnavailable ErrorCode = 501

	// Statistics errors (600-699)
	ErrCodeInvalidRiskFreeRate ErrorCode = 600
	ErrCodeStatsWriteFailed    ErrorCode = 601

	// Storage/recorder errors (700-799)
	ErrCodeStorageFailed ErrorCode = 700
	ErrCodeExportFailed  ErrorCode = 701

	// Strategy/callback errors (800-899)
	ErrCodeStrategyFailed ErrorCode = 800
	ErrCodeCallbackFailed ErrorCode = 801
)
