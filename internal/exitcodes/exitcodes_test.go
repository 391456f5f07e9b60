package exitcodes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/go-sql-driver/mysql"

	"github.com/johndauphine/profile-ingest/internal/executor"
	"github.com/johndauphine/profile-ingest/internal/scalar"
	"github.com/johndauphine/profile-ingest/internal/typecheck"
)

func TestFromError(t *testing.T) {
	rangeErr := &typecheck.Error{Kind: typecheck.RangeViolation, Table: "runs", Column: "nodes", Row: 0, Msg: "value 40000 is out of range"}

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, Success},
		{"path error", &os.PathError{Op: "open", Path: "/foo", Err: errors.New("no such file")}, IOError},
		{"yaml parse error", errors.New("yaml: unmarshal error"), ConfigError},
		{"missing database", errors.New("database.database is required for mysql"), ConfigError},
		{"no target", fmt.Errorf("dispatching: %w", executor.ErrNoTarget), ConfigError},
		{"no such file", errors.New("open config.yaml: no such file or directory"), IOError},
		{"connection refused", errors.New("dial tcp: connection refused"), ConnectionError},
		{"access denied", errors.New("pinging database: access denied for user"), ConnectionError},
		{"typed validation error", fmt.Errorf("a.yaml: %w", rangeErr), ValidationError},
		{"uncastable", fmt.Errorf("where: %w", scalar.ErrNullValue), ValidationError},
		{"validation text", errors.New(`value "x" is neither a reference (@\w+id) nor a valid integer`), ValidationError},
		{"server rejected statement", fmt.Errorf("executing statement 1 of 2: %w", &mysql.MySQLError{Number: 1146, Message: "Table 'p.x' doesn't exist"}), IngestError},
		{"context canceled", fmt.Errorf("ingesting: %w", context.Canceled), Cancelled},
		{"interrupted", errors.New("interrupted by signal"), Cancelled},
		{"ledger error", errors.New("opening ledger: database is locked"), StateError},
		{"unknown run", errors.New("unknown run ID abc"), StateError},
		{"unknown error", errors.New("something unexpected happened"), IngestError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			if got != tt.expected {
				t.Errorf("FromError(%v) = %d (%s), want %d (%s)",
					tt.err, got, Description(got), tt.expected, Description(tt.expected))
			}
		})
	}
}

func TestExitError(t *testing.T) {
	inner := errors.New("inner error")
	exitErr := NewExitError(inner, ConnectionError)

	if exitErr.Code != ConnectionError {
		t.Errorf("expected code %d, got %d", ConnectionError, exitErr.Code)
	}

	if exitErr.Error() != "inner error" {
		t.Errorf("expected error message 'inner error', got '%s'", exitErr.Error())
	}

	if errors.Unwrap(exitErr) != inner {
		t.Error("Unwrap should return inner error")
	}

	// Test that FromError extracts the code from ExitError
	if FromError(exitErr) != ConnectionError {
		t.Errorf("FromError should extract code from ExitError")
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := []int{ConnectionError, Cancelled, IOError}
	nonRecoverable := []int{Success, ConfigError, IngestError, ValidationError, StateError}

	for _, code := range recoverable {
		if !IsRecoverable(code) {
			t.Errorf("expected code %d (%s) to be recoverable", code, Description(code))
		}
	}

	for _, code := range nonRecoverable {
		if IsRecoverable(code) {
			t.Errorf("expected code %d (%s) to be non-recoverable", code, Description(code))
		}
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{Success, "success"},
		{ConfigError, "configuration error"},
		{ConnectionError, "connection error (recoverable)"},
		{IngestError, "ingest error"},
		{ValidationError, "validation error"},
		{Cancelled, "cancelled (recoverable)"},
		{StateError, "state error"},
		{IOError, "I/O error (recoverable)"},
		{99, "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := Description(tt.code)
			if got != tt.expected {
				t.Errorf("Description(%d) = %q, want %q", tt.code, got, tt.expected)
			}
		})
	}
}
