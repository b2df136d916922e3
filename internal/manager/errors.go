package manager

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	ErrCodeNotInitialized  = "POOL_NOT_INITIALIZED"
	ErrCodeSessionCallback = "SESSION_CALLBACK_FAILED"
)

// ErrNotInitialized matches any *NotInitializedError via errors.Is.
var ErrNotInitialized = errors.New("pool manager not initialized")

// NotInitializedError is returned by manager operations before Boot.
type NotInitializedError struct {
	Code    string
	Message string
}

func newNotInitializedError() *NotInitializedError {
	return &NotInitializedError{
		Code:    ErrCodeNotInitialized,
		Message: "Pool manager not initialized! Please initialize pool first!",
	}
}

func (e *NotInitializedError) Error() string {
	return e.Message
}

// Is reports whether target is ErrNotInitialized.
func (e *NotInitializedError) Is(target error) bool {
	return target == ErrNotInitialized
}

// SessionCallbackError wraps a failure while acquiring a session or running
// the caller's callback.
type SessionCallbackError struct {
	Code    string
	Message string
	Cause   error
}

func newSessionCallbackError(cause error) *SessionCallbackError {
	return &SessionCallbackError{
		Code:    ErrCodeSessionCallback,
		Message: fmt.Sprintf("Exception occured while callback: %v", cause),
		Cause:   cause,
	}
}

func (e *SessionCallbackError) Error() string {
	return e.Message
}

func (e *SessionCallbackError) Unwrap() error {
	return e.Cause
}
