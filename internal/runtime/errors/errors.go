package errors

import (
	"fmt"

	sterrors "errors"
)

var (
	ErrNoHandlerFound       = sterrors.New("funchost: no recognized handler shape in target")
	ErrHandlerRequired      = sterrors.New("funchost: handler target is required")
	ErrConfigRequired       = sterrors.New("funchost: configuration is required")
	ErrLoggerRequired       = sterrors.New("funchost: logger is required")
	ErrLifecycleTransition  = sterrors.New("funchost: invalid lifecycle transition")
	ErrStopHookTimeout      = sterrors.New("funchost: stop hook exceeded the shutdown deadline")
	ErrResponseAlreadySent  = sterrors.New("funchost: response start sent twice")
	ErrMiddlewareNilBuilder = sterrors.New("funchost: middleware registration has neither middleware nor builder")
)

// HandlerInitError wraps a failure raised by the user constructor at boot.
// It is fatal: the runtime never reaches the serving state when it occurs.
type HandlerInitError struct {
	Err error
}

func (e HandlerInitError) Error() string {
	return "funchost: handler constructor failed: " + e.Err.Error()
}

func (e HandlerInitError) Unwrap() error {
	return e.Err
}

// NewHandlerInitError wraps err in a HandlerInitError, or returns nil when err is nil.
func NewHandlerInitError(err error) error {
	if err == nil {
		return nil
	}
	return HandlerInitError{Err: err}
}

// ConfigValidationError wraps configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("funchost: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err in a ConfigValidationError, or returns nil
// when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
