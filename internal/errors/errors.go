/**
 * Structured error types for the extraction review worker
 *
 * The core surfaces exactly two error kinds: invalid configuration (fatal,
 * raised at construction time only) and malformed input (recovered locally
 * with a fallback and logged, never raised to the caller). The remaining
 * codes belong to the persistence and queue collaborators.
 */

package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies a failure class for logs and persisted job records.
type ErrorCode string

const (
	// Core errors
	ErrorConfigInvalid  ErrorCode = "CONFIG_INVALID"
	ErrorMalformedInput ErrorCode = "MALFORMED_INPUT"

	// Collaborator errors
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"
	ErrorQueueFailed    ErrorCode = "QUEUE_FAILED"
	ErrorBadPayload     ErrorCode = "BAD_PAYLOAD"
)

// ReviewError is a structured error carrying the failure code, the document
// it concerns, and arbitrary detail for persistence.
type ReviewError struct {
	Code       ErrorCode
	Message    string
	DocumentID string
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *ReviewError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ReviewError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

// NewConfigurationError reports an invalid validator or worker configuration
// value. Configuration errors are fatal and only ever produced while
// constructing a component.
func NewConfigurationError(setting string, reason string) *ReviewError {
	return &ReviewError{
		Code:      ErrorConfigInvalid,
		Message:   fmt.Sprintf("invalid configuration for %s: %s", setting, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"setting": setting,
		},
	}
}

// NewMalformedInputError reports input that could not be interpreted (for
// example a polygon in no recognizable shape). Callers recover with a
// fallback value and log this; it never propagates out of the core.
func NewMalformedInputError(documentID string, detail string) *ReviewError {
	return &ReviewError{
		Code:       ErrorMalformedInput,
		Message:    detail,
		DocumentID: documentID,
		Timestamp:  time.Now(),
	}
}

// NewStorageFailedError reports a failure persisting review results.
func NewStorageFailedError(documentID string, cause error) *ReviewError {
	return &ReviewError{
		Code:       ErrorStorageFailed,
		Message:    "failed to store review results",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

// NewDatabaseFailedError reports a database-level failure.
func NewDatabaseFailedError(operation string, cause error) *ReviewError {
	return &ReviewError{
		Code:      ErrorDatabaseFailed,
		Message:   fmt.Sprintf("database operation failed: %s", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

// NewBadPayloadError reports a queue payload that failed schema validation.
func NewBadPayloadError(documentID string, cause error) *ReviewError {
	return &ReviewError{
		Code:       ErrorBadPayload,
		Message:    "review payload failed schema validation",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

// ToMap converts the error to a map for database storage.
func (e *ReviewError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.DocumentID != "" {
		result["document_id"] = e.DocumentID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
