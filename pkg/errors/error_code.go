package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199). These are the only fatal errors: they
	// are raised once at setup and abort before the simulation begins.
	ErrCodeInvalidConfiguration ErrorCode = 100
	ErrCodeInvalidParameter     ErrorCode = 101
	ErrCodeEmptyUniverse        ErrorCode = 102

	// Data errors (200-299). Scoped to one asset and one step; the driver
	// logs and continues.
	ErrCodeInsufficientData ErrorCode = 200
	ErrCodeMissingPrice     ErrorCode = 201
	ErrCodeAssetNotFound    ErrorCode = 202
	ErrCodeDataParseFailed  ErrorCode = 203

	// Computation errors (300-399). Degenerate ratios inside the indicator
	// engine; mapped to a zero sub-score, never propagated.
	ErrCodeComputation ErrorCode = 300

	// Ledger errors (400-499)
	ErrCodeLedgerAppendFailed ErrorCode = 400
	ErrCodeLedgerQueryFailed  ErrorCode = 401
	ErrCodeLedgerExportFailed ErrorCode = 402

	// Engine lifecycle errors (500-599)
	ErrCodeNotInitialized ErrorCode = 500
	ErrCodeNoDataSource   ErrorCode = 501
	ErrCodeRunFailed      ErrorCode = 502
)
