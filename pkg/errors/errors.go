package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeResourceInfo indicates the resource metadata could not be fetched
	ErrorTypeResourceInfo ErrorType = "RESOURCE_INFO"
	// ErrorTypeInsufficientSpace indicates the target volume is too small
	ErrorTypeInsufficientSpace ErrorType = "INSUFFICIENT_SPACE"
	// ErrorTypeMergeVerification indicates segment or merged file lengths are wrong
	ErrorTypeMergeVerification ErrorType = "MERGE_VERIFICATION"
	// ErrorTypeSegmentTransfer indicates a segment did not reach its planned length
	ErrorTypeSegmentTransfer ErrorType = "SEGMENT_TRANSFER"
	// ErrorTypeCanceled indicates the transfer was canceled
	ErrorTypeCanceled ErrorType = "CANCELED"
	// ErrorTypeTransport indicates an HTTP or IO failure
	ErrorTypeTransport ErrorType = "TRANSPORT"
	// ErrorTypeInvalidRequest indicates a malformed download request
	ErrorTypeInvalidRequest ErrorType = "INVALID_REQUEST"
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"
	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new application error
func New(errorType ErrorType, message string) error {
	return &AppError{
		Type:    errorType,
		Message: message,
	}
}

// Wrap wraps an error with an application error
func Wrap(errorType ErrorType, message string, err error) error {
	return &AppError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
}

// ResourceInfo creates a resource info error
func ResourceInfo(url string, err error) error {
	return Wrap(ErrorTypeResourceInfo, fmt.Sprintf("failed to fetch resource info for %s", url), err)
}

// InsufficientSpace creates an insufficient space error
func InsufficientSpace(required, available int64) error {
	return New(ErrorTypeInsufficientSpace,
		fmt.Sprintf("insufficient space: need %d bytes, %d available", required, available))
}

// MergeVerification creates a merge verification error
func MergeVerification(message string) error {
	return New(ErrorTypeMergeVerification, message)
}

// SegmentTransfer creates a segment transfer error
func SegmentTransfer(message string, err error) error {
	return Wrap(ErrorTypeSegmentTransfer, message, err)
}

// Canceled creates a canceled error
func Canceled() error {
	return New(ErrorTypeCanceled, "Canceled")
}

// Transport wraps a transport error
func Transport(message string, err error) error {
	return Wrap(ErrorTypeTransport, message, err)
}

// InvalidRequest creates an invalid request error
func InvalidRequest(message string) error {
	return New(ErrorTypeInvalidRequest, message)
}

// NotFound creates a not found error
func NotFound(message string) error {
	return New(ErrorTypeNotFound, message)
}

// Internal creates an internal error
func Internal(message string) error {
	return New(ErrorTypeInternal, message)
}

// Is reports whether err is an AppError of the given type
func Is(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsResourceInfo checks if an error is a resource info error
func IsResourceInfo(err error) bool {
	return Is(err, ErrorTypeResourceInfo)
}

// IsInsufficientSpace checks if an error is an insufficient space error
func IsInsufficientSpace(err error) bool {
	return Is(err, ErrorTypeInsufficientSpace)
}

// IsMergeVerification checks if an error is a merge verification error
func IsMergeVerification(err error) bool {
	return Is(err, ErrorTypeMergeVerification)
}

// IsSegmentTransfer checks if an error is a segment transfer error
func IsSegmentTransfer(err error) bool {
	return Is(err, ErrorTypeSegmentTransfer)
}

// IsCanceled checks if an error is a canceled error
func IsCanceled(err error) bool {
	return Is(err, ErrorTypeCanceled)
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	return Is(err, ErrorTypeTransport)
}

// IsInvalidRequest checks if an error is an invalid request error
func IsInvalidRequest(err error) bool {
	return Is(err, ErrorTypeInvalidRequest)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return Is(err, ErrorTypeNotFound)
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return Is(err, ErrorTypeInternal)
}
