package backup

import (
	"errors"
	"fmt"
)

// EngineError represents errors raised by the backup and recovery engine.
type EngineError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ErrorType classifies engine errors.
type ErrorType string

const (
	// ErrorTypeValidation covers unknown backup IDs and invalid options.
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	// ErrorTypeIntegrity covers checksum or missing-file mismatches found
	// before a restore. Always fatal; no restore write may follow.
	ErrorTypeIntegrity ErrorType = "INTEGRITY_ERROR"
	// ErrorTypeFatalExport covers schema export failure on a full backup,
	// which aborts the whole job.
	ErrorTypeFatalExport ErrorType = "FATAL_EXPORT_ERROR"
	// ErrorTypeRestore covers a failed table restore step; remaining steps
	// are aborted and already-restored tables stay in place.
	ErrorTypeRestore ErrorType = "RESTORE_ERROR"
	// ErrorTypeRetentionCleanup covers a failed deletion of one job during a
	// sweep; the sweep continues for other jobs.
	ErrorTypeRetentionCleanup ErrorType = "RETENTION_CLEANUP_ERROR"
	// ErrorTypeStorage covers filesystem and job-store failures.
	ErrorTypeStorage ErrorType = "STORAGE_ERROR"
	// ErrorTypeNotFound covers lookups of missing jobs.
	ErrorTypeNotFound ErrorType = "NOT_FOUND_ERROR"
	// ErrorTypeConflict covers illegal state transitions and in-use jobs.
	ErrorTypeConflict ErrorType = "CONFLICT_ERROR"
	// ErrorTypeCompression covers codec failures.
	ErrorTypeCompression ErrorType = "COMPRESSION_ERROR"
	// ErrorTypeEncryption covers at-rest encryption failures.
	ErrorTypeEncryption ErrorType = "ENCRYPTION_ERROR"
)

// NewEngineError creates a new EngineError
func NewEngineError(errorType ErrorType, message string, cause error) *EngineError {
	return &EngineError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

func NewValidationError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeValidation, message, cause)
}

func NewIntegrityError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeIntegrity, message, cause)
}

func NewFatalExportError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeFatalExport, message, cause)
}

func NewRestoreError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeRestore, message, cause)
}

func NewRetentionCleanupError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeRetentionCleanup, message, cause)
}

func NewStorageError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeStorage, message, cause)
}

func NewNotFoundError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeConflict, message, cause)
}

func NewCompressionError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeCompression, message, cause)
}

func NewEncryptionError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeEncryption, message, cause)
}

// IsErrorType reports whether err is an EngineError of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Type == errorType
	}
	return false
}

// IsIntegrityError reports whether err is an integrity failure.
func IsIntegrityError(err error) bool {
	return IsErrorType(err, ErrorTypeIntegrity)
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsNotFoundError reports whether err is a missing-job lookup.
func IsNotFoundError(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}
