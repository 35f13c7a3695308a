package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode classifies failures by how callers should react, not by where
// they happened.
type ErrorCode string

const (
	// ErrCodeTransientRegistry: registry (Redis) operation failed, retry may
	// succeed.
	ErrCodeTransientRegistry ErrorCode = "TRANSIENT_REGISTRY"
	// ErrCodeProtocolDrop: a single inbound frame was malformed or out of
	// set; drop it, keep the session.
	ErrCodeProtocolDrop ErrorCode = "PROTOCOL_DROP"
	// ErrCodePeerState: the operation is invalid in the peer's current state
	// (offline, already in a session, no pending offer).
	ErrCodePeerState ErrorCode = "PEER_STATE"
	// ErrCodeICEFatal: connection establishment failed and the session must
	// be torn down.
	ErrCodeICEFatal ErrorCode = "ICE_FATAL"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, an HTTP mapping for the control surface, and
// structured context.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key/value pair to the error's context.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with an application error.
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewTransientRegistryError(err error, op string) *AppError {
	return WrapError(err, ErrCodeTransientRegistry,
		fmt.Sprintf("registry operation %s failed", op), http.StatusServiceUnavailable)
}

func NewProtocolDropError(err error, frameType string) *AppError {
	return WrapError(err, ErrCodeProtocolDrop,
		fmt.Sprintf("dropping %s frame", frameType), http.StatusBadRequest)
}

func NewPeerStateError(message string) *AppError {
	return NewAppError(ErrCodePeerState, message, http.StatusConflict)
}

func NewICEFatalError(err error, stage string) *AppError {
	return WrapError(err, ErrCodeICEFatal,
		fmt.Sprintf("connection establishment failed during %s", stage), http.StatusBadGateway)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts an AppError from the error chain.
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	type unwrapper interface {
		Unwrap() error
	}
	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}
	return nil
}
