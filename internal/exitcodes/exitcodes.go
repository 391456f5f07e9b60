// Package exitcodes defines the process exit codes of the CLI so that
// schedulers and wrappers can tell retryable failures from permanent ones.
package exitcodes

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/johndauphine/profile-ingest/internal/executor"
	"github.com/johndauphine/profile-ingest/internal/scalar"
	"github.com/johndauphine/profile-ingest/internal/typecheck"
)

const (
	// Success - run completed without errors
	Success = 0

	// ConfigError - configuration/YAML parsing errors (non-recoverable, don't retry)
	ConfigError = 1

	// ConnectionError - database connection or pool errors (recoverable)
	ConnectionError = 2

	// IngestError - statement execution or document extraction failed (non-recoverable)
	IngestError = 3

	// ValidationError - a value does not fit its column type (non-recoverable)
	ValidationError = 4

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable)
	Cancelled = 5

	// StateError - ingest ledger or schema cache errors (non-recoverable)
	StateError = 6

	// IOError - file I/O errors (recoverable)
	IOError = 7
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error.
// Typed errors are classified first, then error text.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}

	var typeErr *typecheck.Error
	if errors.As(err, &typeErr) || errors.Is(err, scalar.ErrUncastable) {
		return ValidationError
	}

	if errors.Is(err, executor.ErrNoTarget) {
		return ConfigError
	}

	// The server answered, so the connection is fine and the statement is at fault
	var sqlErr *mysql.MySQLError
	if errors.As(err, &sqlErr) {
		return IngestError
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, []string{
		"no such file",
		"file not found",
		"permission denied",
		"is a directory",
		"not a directory",
	}) {
		return IOError
	}

	if containsAny(errStr, []string{
		"out of range",
		"neither a reference",
		"cannot be cast",
		"not found in schema",
		"not found in table",
		"non-hex",
		"validation failed",
	}) {
		return ValidationError
	}

	if containsAny(errStr, []string{
		"yaml:",
		"json:",
		"unmarshal",
		"invalid config",
		"missing required",
		"is required",
		"parsing config",
		"unknown database driver",
	}) && !containsAny(errStr, []string{"connection", "connect", "dial"}) {
		return ConfigError
	}

	if containsAny(errStr, []string{
		"connection",
		"connect",
		"dial",
		"refused",
		"timeout",
		"unreachable",
		"no such host",
		"network",
		"ping",
		"access denied",
		"authentication",
	}) {
		return ConnectionError
	}

	if containsAny(errStr, []string{
		"cancel",
		"interrupt",
		"context deadline",
	}) {
		return Cancelled
	}

	if containsAny(errStr, []string{
		"state",
		"ledger",
		"schema cache",
		"run not found",
		"unknown run",
	}) {
		return StateError
	}

	return IngestError
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	switch code {
	case ConnectionError, Cancelled, IOError:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "success"
	case ConfigError:
		return "configuration error"
	case ConnectionError:
		return "connection error (recoverable)"
	case IngestError:
		return "ingest error"
	case ValidationError:
		return "validation error"
	case Cancelled:
		return "cancelled (recoverable)"
	case StateError:
		return "state error"
	case IOError:
		return "I/O error (recoverable)"
	default:
		return "unknown error"
	}
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
