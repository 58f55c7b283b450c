package lensmcp

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted is returned when all connection slots stay busy for the
// entire acquire timeout. It is retryable: the caller should back off and try
// again, unlike a hard connection failure.
var ErrPoolExhausted = errors.New("connection pool exhausted: all connection slots are busy, try again shortly")

// ConfigError is a fatal startup error: the process must not start.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}

// TunnelError is a fatal startup error raised when the SSH tunnel cannot be
// established. The server never falls back to a direct connection.
type TunnelError struct {
	Err error
}

func (e *TunnelError) Error() string {
	return "ssh tunnel: " + e.Err.Error()
}

func (e *TunnelError) Unwrap() error {
	return e.Err
}

// ConnectError wraps a failure to obtain or open a database connection.
// Recoverable: the bad connection is discarded and replaced lazily.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "database connect: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ExecutionError wraps a driver-level query failure. The driver's message is
// preserved verbatim for diagnostics; execution is never retried.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
