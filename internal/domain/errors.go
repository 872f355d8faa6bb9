package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Wrap with NewDomainError to attach an operation and detail.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound     = fmt.Errorf("llm provider not found")
	ErrStreamingUnsupported = fmt.Errorf("provider does not support streaming")
	ErrToolNotFound         = fmt.Errorf("tool not found")
	ErrToolFailure          = fmt.Errorf("tool execution failed")
	ErrMaxIterations        = fmt.Errorf("agent reached max iterations")
	ErrSessionNotFound      = fmt.Errorf("session not found")
	ErrConfigLoad           = fmt.Errorf("failed to load configuration")
	ErrDecryption           = fmt.Errorf("decryption failed")
	ErrPublish              = fmt.Errorf("publish failed")
	ErrAuthInvalid          = fmt.Errorf("authentication failed")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "SessionStore.Create")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for logs and API bodies.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeDuplicate            ErrorCode = "DUPLICATE"
	CodeTimeout              ErrorCode = "TIMEOUT"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"
	CodeProviderError        ErrorCode = "PROVIDER_ERROR"
	CodeProviderNotFound     ErrorCode = "PROVIDER_NOT_FOUND"
	CodeStreamingUnsupported ErrorCode = "STREAMING_UNSUPPORTED"
	CodeToolNotFound         ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure          ErrorCode = "TOOL_FAILURE"
	CodeMaxIterations        ErrorCode = "MAX_ITERATIONS"
	CodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad           ErrorCode = "CONFIG_LOAD"
	CodeDecryption           ErrorCode = "DECRYPTION"
	CodePublish              ErrorCode = "PUBLISH"
	CodeAuthInvalid          ErrorCode = "AUTH_INVALID"
	CodeContextOverflow      ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit            ErrorCode = "RATE_LIMIT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:             CodeNotFound,
	ErrDuplicate:            CodeDuplicate,
	ErrTimeout:              CodeTimeout,
	ErrInvalidInput:         CodeInvalidInput,
	ErrProviderError:        CodeProviderError,
	ErrProviderNotFound:     CodeProviderNotFound,
	ErrStreamingUnsupported: CodeStreamingUnsupported,
	ErrToolNotFound:         CodeToolNotFound,
	ErrToolFailure:          CodeToolFailure,
	ErrMaxIterations:        CodeMaxIterations,
	ErrSessionNotFound:      CodeSessionNotFound,
	ErrConfigLoad:           CodeConfigLoad,
	ErrDecryption:           CodeDecryption,
	ErrPublish:              CodePublish,
	ErrAuthInvalid:          CodeAuthInvalid,
	ErrContextOverflow:      CodeContextOverflow,
	ErrRateLimit:            CodeRateLimit,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
