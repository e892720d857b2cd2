// Package errors provides the structured error type used across the trade
// reconciliation engine: every failure carries a category, a stable code,
// optional remediation advice and key-value context, plus a captured stack
// trace for debugging.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by the subsystem that produced them.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryExtraction    ErrorCategory = "extraction"
	CategoryMatching      ErrorCategory = "matching"
	CategoryLedger        ErrorCategory = "ledger"
	CategoryCommit        ErrorCategory = "commit"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode identifies a specific failure within a category.
type ErrorCode string

const (
	// Configuration errors. All of these are fatal at engine
	// initialization: the engine refuses to score with undefined weights.
	CodeInvalidConfig    ErrorCode = "invalid_config"
	CodeMissingConfig    ErrorCode = "missing_config"
	CodeInvalidAliasBook ErrorCode = "invalid_alias_book"

	// Extraction input errors.
	CodeMalformedExtraction ErrorCode = "malformed_extraction"

	// Matching errors.
	CodeScoringFailed ErrorCode = "scoring_failed"

	// Ledger errors.
	CodeTradeNotFound ErrorCode = "trade_not_found"
	CodeMatchNotFound ErrorCode = "match_not_found"

	// Commit errors.
	CodeClaimConflict ErrorCode = "claim_conflict"

	// Internal errors.
	CodeUnexpected ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all engine failures.
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// GetExitCode maps the error category to a process exit code for the CLI.
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryConfiguration:
		return 2
	case CategoryExtraction:
		return 3
	case CategoryMatching, CategoryLedger:
		return 4
	case CategoryCommit:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error.
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds remediation advice to the error.
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a new EngineError with a captured stack trace.
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with engine error context.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// ConfigurationError creates a fatal configuration error. The engine never
// runs with missing or unparsable thresholds, weights or alias books.
func ConfigurationError(code ErrorCode, setting string, err error) *EngineError {
	message := fmt.Sprintf("invalid engine configuration: %s", setting)
	if code == CodeMissingConfig {
		message = fmt.Sprintf("missing required engine configuration: %s", setting)
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}
	return result.
		WithSuggestion("fix the engine configuration before scoring; the engine refuses to run with undefined parameters").
		WithContext("setting", setting)
}

// ExtractionError creates an error for malformed extraction collaborator
// output.
func ExtractionError(detail string, err error) *EngineError {
	message := fmt.Sprintf("malformed extraction result: %s", detail)
	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryExtraction, CodeMalformedExtraction, message)
	} else {
		result = New(CategoryExtraction, CodeMalformedExtraction, message)
	}
	return result.WithSuggestion("check the extraction collaborator output against the expected schema")
}

// ConflictError creates a retryable optimistic-commit conflict: another
// batch claimed the trade between snapshot and commit.
func ConflictError(tradeID string) *EngineError {
	err := New(CategoryCommit, CodeClaimConflict,
		fmt.Sprintf("trade %s was claimed by a concurrent confirmation", tradeID))
	err.Retryable = true
	return err.
		WithSuggestion("re-run the confirmation against a fresh open-trade snapshot").
		WithContext("trade_id", tradeID)
}

// TradeNotFoundError creates a ledger lookup error for a missing trade.
func TradeNotFoundError(tradeID string) *EngineError {
	return New(CategoryLedger, CodeTradeNotFound,
		fmt.Sprintf("trade %s not found in the ledger", tradeID)).
		WithContext("trade_id", tradeID)
}

// MatchNotFoundError creates a ledger lookup error for a missing match result.
func MatchNotFoundError(matchID string) *EngineError {
	return New(CategoryLedger, CodeMatchNotFound,
		fmt.Sprintf("match result %s not found", matchID)).
		WithContext("match_id", matchID)
}

// IsEngineError checks if an error is an EngineError.
func IsEngineError(err error) bool {
	_, ok := AsEngineError(err)
	return ok
}

// AsEngineError extracts an EngineError from an error chain.
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// IsRetryableConflict reports whether the error is an optimistic-commit
// conflict the caller may retry.
func IsRetryableConflict(err error) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Retryable && engineErr.Code == CodeClaimConflict
}

// IsConfiguration reports whether the error is a configuration failure.
func IsConfiguration(err error) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Category == CategoryConfiguration
}
