// Package errors provides standardized error handling for the price
// resolution engine and its BPMN workflow integration.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeSearchQuotaExhausted ErrorCode = "SEARCH_QUOTA_EXHAUSTED"
	ErrCodeSearchTimeout        ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeSearchFailed         ErrorCode = "SEARCH_FAILED"

	ErrCodeOracleParseFailed ErrorCode = "ORACLE_PARSE_FAILED"
	ErrCodeOracleTimeout     ErrorCode = "ORACLE_TIMEOUT"

	ErrCodeCacheWriteFailed ErrorCode = "CACHE_WRITE_FAILED"
	ErrCodeCacheReadFailed  ErrorCode = "CACHE_READ_FAILED"

	ErrCodeBatchValidationFailed ErrorCode = "BATCH_VALIDATION_FAILED"
	ErrCodeBatchFailed           ErrorCode = "BATCH_FAILED"
	ErrCodeJobPersistenceFailed  ErrorCode = "JOB_PERSISTENCE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewSearchQuotaExhaustedError marks the shared search quota as spent.
// Not retryable inside the cooldown window.
func NewSearchQuotaExhaustedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQuotaExhausted,
		Message:   "Shopping search API quota exhausted",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeoutError creates a retryable search timeout error.
func NewSearchTimeoutError(retailer string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchTimeout,
		Message:   "Shopping search call timed out",
		Details:   fmt.Sprintf("retailer: %s", retailer),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewOracleParseFailedError wraps an unparseable model response.
func NewOracleParseFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeOracleParseFailed,
		Message:   "Confidence oracle returned an unparseable response",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBatchValidationError creates a non-retryable client error for bad
// batch input.
func NewBatchValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBatchValidationFailed,
		Message:   "Batch request failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBatchFailedError wraps an exception that escaped the per-product
// resolution loop. Partial results are preserved by the orchestrator
// before this is returned.
func NewBatchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBatchFailed,
		Message:   "Internal error during batch price comparison",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobPersistenceError creates a retryable persistence error.
func NewJobPersistenceError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobPersistenceFailed,
		Message:   "Failed to persist batch job record",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether err is a retryable StandardError.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return false
}

// CodeOf extracts the error code, or empty string for foreign errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Code
	}
	return ""
}
