// Package errors provides custom error types for the timeline sync engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeUnsupportedKind   ErrorCode = "UNSUPPORTED_KIND"
	ErrCodeMissingProject    ErrorCode = "MISSING_PROJECT"
	ErrCodeMissingUID        ErrorCode = "MISSING_UID"
	ErrCodeUndefinedID       ErrorCode = "UNDEFINED_ID"
	ErrCodeRemoteWrite       ErrorCode = "REMOTE_WRITE_FAILURE"
	ErrCodeNetworkFailure    ErrorCode = "NETWORK_FAILURE"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
)

// Operation represents the type of sync operation
type Operation string

const (
	OpAddElement      Operation = "add_element"
	OpUpdateElement   Operation = "update_element"
	OpRemoveElement   Operation = "remove_element"
	OpAddAnimation    Operation = "add_animation"
	OpUpdateAnimation Operation = "update_animation"
	OpRemoveAnimation Operation = "remove_animation"
	OpCopy            Operation = "copy"
	OpDiff            Operation = "diff"
	OpMerge           Operation = "merge"
	OpSubscribe       Operation = "subscribe"
	OpUnsubscribe     Operation = "unsubscribe"
	OpRemoteWrite     Operation = "remote_write"
	OpSetBackground   Operation = "set_background"
	OpSetMaxTime      Operation = "set_max_time"
	OpAddAsset        Operation = "add_asset"
	OpClose           Operation = "close"
)

// SyncError represents an error that occurred during synchronization
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "store", "feed", "merge")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewUnsupportedKindError reports an element or animation kind outside the
// closed variant set. Never retryable: it indicates a schema mismatch
// between client versions.
func NewUnsupportedKindError(op Operation, kind string) *SyncError {
	return &SyncError{
		Code:      ErrCodeUnsupportedKind,
		Op:        op,
		Component: "element",
		Err:       fmt.Errorf("unsupported kind %q", kind),
		Retryable: false,
	}
}

// NewMissingProjectError reports an operation invoked before a project
// context was set.
func NewMissingProjectError(op Operation) *SyncError {
	return &SyncError{
		Code:      ErrCodeMissingProject,
		Op:        op,
		Component: "store",
		Err:       errors.New("project id is not set"),
		Retryable: false,
	}
}

// NewMissingUIDError reports an update attempted on an entity that was never
// successfully persisted remotely.
func NewMissingUIDError(op Operation, id string) *SyncError {
	return &SyncError{
		Code:      ErrCodeMissingUID,
		Op:        op,
		Component: "store",
		Err:       fmt.Errorf("entity %q has no remote identifier", id),
		Retryable: false,
	}
}

// NewUndefinedIDError reports a remove/merge operation invoked with an empty id.
func NewUndefinedIDError(op Operation) *SyncError {
	return &SyncError{
		Code:      ErrCodeUndefinedID,
		Op:        op,
		Component: "store",
		Err:       errors.New("entity id is undefined"),
		Retryable: false,
	}
}

// NewRemoteWriteError wraps a failed create/update/delete call to the remote
// document store.
func NewRemoteWriteError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeRemoteWrite,
		Op:        op,
		Component: "remote",
		Err:       cause,
		Retryable: true,
	}
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// NewNetworkError creates a new network-related SyncError
func NewNetworkError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeNetworkFailure,
		Op:        op,
		Component: "feed",
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from an error, or "" when the error is not a
// SyncError.
func CodeOf(err error) ErrorCode {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code
	}
	return ""
}

// IsUnsupportedKind reports whether err carries ErrCodeUnsupportedKind.
func IsUnsupportedKind(err error) bool {
	return CodeOf(err) == ErrCodeUnsupportedKind
}
