package server

import (
	"errors"
	"fmt"
)

const (
	errorCodeInvalidPort   = "SERVER_INVALID_PORT"
	errorCodeInvalidConfig = "SERVER_INVALID_CONFIG"
	errorCodeListenFailed  = "SERVER_LISTEN_FAILED"
	errorCodeUserDBFailed  = "SERVER_USERDB_FAILED"
	errorCodeInitFailed    = "SERVER_INIT_FAILED"
	errorCodeRuntimeFailed = "SERVER_RUNTIME_FAILED"
	errorCodeCleanupFailed = "SERVER_CLEANUP_FAILED"
)

var (
	// ErrInvalidPort indicates an out-of-range port value.
	ErrInvalidPort = errors.New("invalid port")
	// ErrMissingDependency indicates New was called without a required
	// dependency.
	ErrMissingDependency = errors.New("missing dependency")
)

type errorCoder interface {
	error
	Code() string
}

type withCodeError struct {
	error
	code string
}

func (e *withCodeError) Code() string {
	return e.code
}

func (e *withCodeError) Unwrap() error {
	return e.error
}

// WithErrorCode annotates err with a server error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &withCodeError{error: err, code: code}
}

// NewInvalidPortError formats an invalid port error with context.
func NewInvalidPortError(port int) error {
	return WithErrorCode(fmt.Errorf("%w: invalid port %d: must be between 0 and 65535", ErrInvalidPort, port), errorCodeInvalidPort)
}

// WrapInvalidConfig annotates server config validation errors.
func WrapInvalidConfig(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(fmt.Errorf("invalid server configuration: %w", err), errorCodeInvalidConfig)
}

// WrapListen annotates listen socket setup failures.
func WrapListen(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeListenFailed)
}

// WrapUserDB annotates user database failures.
func WrapUserDB(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeUserDBFailed)
}

// WrapInit annotates server wiring failures.
func WrapInit(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeInitFailed)
}

// WrapRuntime annotates server runtime failures.
func WrapRuntime(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeRuntimeFailed)
}

// WrapCleanup annotates teardown failures.
func WrapCleanup(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(err, errorCodeCleanupFailed)
}

// ErrorCode resolves a server error to its error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded errorCoder
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrInvalidPort):
		return errorCodeInvalidPort
	case errors.Is(err, ErrMissingDependency):
		return errorCodeInitFailed
	default:
		return errorCodeRuntimeFailed
	}
}

// ExitCode maps server errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case errorCodeInvalidPort, errorCodeInvalidConfig:
		return 2
	case errorCodeListenFailed, errorCodeUserDBFailed, errorCodeInitFailed:
		return 7
	default:
		return 1
	}
}

// Suggestions provides CLI hints for server errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeInvalidPort:
		return []string{
			"Use a port between 1 and 65535",
			"Example:                 switchyard serve --server.port 8080",
		}
	case errorCodeInvalidConfig:
		return []string{
			"Check configuration values in the config file",
			"Retry with --debug for detailed validation errors",
		}
	case errorCodeListenFailed:
		return []string{
			"Ensure no other process is using the selected address and port",
			"Listen on another port:  switchyard serve --server.port <port>",
		}
	case errorCodeUserDBFailed:
		return []string{
			"Verify the user database path and its permissions",
			"Another instance may hold the database lock",
		}
	case errorCodeInitFailed:
		return []string{
			"Retry with verbose logging: switchyard serve --debug",
			"Review configuration for invalid values",
		}
	case errorCodeCleanupFailed:
		return []string{
			"Check server logs for teardown errors",
			"Resources may need manual cleanup before a restart",
		}
	case errorCodeRuntimeFailed:
		return []string{
			"Check server logs for runtime errors",
			"Ensure no other process is using the selected port",
		}
	default:
		return nil
	}
}
