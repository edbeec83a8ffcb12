package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for history tree operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument     ErrorCode = 1000
	ErrCodeUnknownIntervalType ErrorCode = 1001
	ErrCodeIntervalOutOfRange  ErrorCode = 1002
	ErrCodeIntervalTooLarge    ErrorCode = 1003
	ErrCodeTreeClosed          ErrorCode = 1004
	ErrCodeChecksumFailed      ErrorCode = 1005

	// Server errors (5xx equivalent)
	ErrCodeInternal          ErrorCode = 2000
	ErrCodeUnavailable       ErrorCode = 2001
	ErrCodeDiskFull          ErrorCode = 2002
	ErrCodeDiskThrottled     ErrorCode = 2003
	ErrCodeMalformedHeader   ErrorCode = 2004
	ErrCodeUnknownNodeType   ErrorCode = 2005
	ErrCodeCorruptedData     ErrorCode = 2006
	ErrCodeNodeNotFound      ErrorCode = 2007
	ErrCodeNodeFull          ErrorCode = 2008
	ErrCodeResourceExhausted ErrorCode = 2009
)

// StorageError represents a structured error with code and context
type StorageError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts StorageError to gRPC status
func (e *StorageError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *StorageError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeUnknownIntervalType, ErrCodeIntervalTooLarge:
		return codes.InvalidArgument
	case ErrCodeIntervalOutOfRange:
		return codes.OutOfRange
	case ErrCodeTreeClosed:
		return codes.FailedPrecondition
	case ErrCodeDiskFull, ErrCodeResourceExhausted, ErrCodeNodeFull:
		return codes.ResourceExhausted
	case ErrCodeDiskThrottled, ErrCodeUnavailable:
		return codes.Unavailable
	case ErrCodeChecksumFailed, ErrCodeCorruptedData, ErrCodeMalformedHeader,
		ErrCodeUnknownNodeType, ErrCodeNodeNotFound:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// NewStorageError creates a new StorageError
func NewStorageError(code ErrorCode, message string, cause error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeInvalidArgument, message, cause)
}

func UnknownIntervalType(tag uint8) *StorageError {
	return NewStorageError(ErrCodeUnknownIntervalType, fmt.Sprintf("unknown interval type tag %d", tag), nil).
		WithDetail("type_tag", tag)
}

func IntervalOutOfRange(start, treeStart int64) *StorageError {
	return NewStorageError(ErrCodeIntervalOutOfRange,
		fmt.Sprintf("interval start %d precedes tree start %d", start, treeStart), nil).
		WithDetail("start", start).
		WithDetail("tree_start", treeStart)
}

func IntervalTooLarge(size, maxSize int) *StorageError {
	return NewStorageError(ErrCodeIntervalTooLarge,
		fmt.Sprintf("encoded interval size %d exceeds node capacity %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func TreeClosed(path string) *StorageError {
	return NewStorageError(ErrCodeTreeClosed, fmt.Sprintf("history tree %s is closed", path), nil).
		WithDetail("path", path)
}

func ChecksumFailed(expected, actual uint32) *StorageError {
	return NewStorageError(ErrCodeChecksumFailed, fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func InternalError(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeUnavailable, message, cause)
}

func DiskFull(usagePercent float64, availableBytes uint64) *StorageError {
	return NewStorageError(ErrCodeDiskFull, fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil).
		WithDetail("usage_percent", usagePercent).
		WithDetail("available_bytes", availableBytes)
}

func DiskThrottled(usagePercent float64) *StorageError {
	return NewStorageError(ErrCodeDiskThrottled, fmt.Sprintf("disk write throttled: %.2f%% used", usagePercent), nil).
		WithDetail("usage_percent", usagePercent)
}

func MalformedHeader(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeMalformedHeader, message, cause)
}

func UnknownNodeType(seq uint32, kind uint8) *StorageError {
	return NewStorageError(ErrCodeUnknownNodeType, fmt.Sprintf("node %d has unknown type %d", seq, kind), nil).
		WithDetail("seq", seq).
		WithDetail("kind", kind)
}

func CorruptedData(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeCorruptedData, message, cause)
}

func NodeNotFound(seq, nodeCount uint32) *StorageError {
	return NewStorageError(ErrCodeNodeNotFound, fmt.Sprintf("node %d not found (node count %d)", seq, nodeCount), nil).
		WithDetail("seq", seq).
		WithDetail("node_count", nodeCount)
}

func NodeFull(seq uint32, children int) *StorageError {
	return NewStorageError(ErrCodeNodeFull, fmt.Sprintf("node %d cannot take more than %d children", seq, children), nil).
		WithDetail("seq", seq).
		WithDetail("children", children)
}

func ResourceExhausted(resource string, current, limit int) *StorageError {
	return NewStorageError(ErrCodeResourceExhausted, fmt.Sprintf("%s exhausted: %d/%d", resource, current, limit), nil).
		WithDetail("resource", resource).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

// IsStorageError checks if an error is a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return stderrors.As(err, &se)
}

// GetCode extracts the error code from an error, looking through wrapped errors
func GetCode(err error) ErrorCode {
	var se *StorageError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// ToGRPCError converts err to a gRPC status error. Context errors keep their
// Canceled and DeadlineExceeded codes, other errors become Unknown.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if stderrors.As(err, &se) {
		return se.ToGRPCStatus().Err()
	}
	return status.FromContextError(err).Err()
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if se, ok := err.(*StorageError); ok && se.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsFormatError reports whether err is a malformed-file error
func IsFormatError(err error) bool {
	switch GetCode(err) {
	case ErrCodeMalformedHeader, ErrCodeUnknownNodeType, ErrCodeUnknownIntervalType,
		ErrCodeChecksumFailed, ErrCodeCorruptedData:
		return true
	}
	return false
}
