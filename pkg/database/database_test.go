package database

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestNewConnection_UnsupportedEngine(t *testing.T) {
	_, err := NewConnection(context.Background(), Config{Engine: "oracle"})
	if err == nil {
		t.Fatal("NewConnection() expected error for unsupported engine")
	}
	if !strings.Contains(err.Error(), "oracle") {
		t.Errorf("NewConnection() error = %v, want it to name the engine", err)
	}
}

func TestNewConnection_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "postgres without database",
			cfg:  Config{Engine: EnginePostgres, Host: "localhost", User: "postgres"},
		},
		{
			name: "mysql without database",
			cfg:  Config{Engine: EngineMySQL, Host: "localhost", User: "root"},
		},
		{
			name: "sqlite without path",
			cfg:  Config{Engine: EngineSQLite},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewConnection(context.Background(), tt.cfg); err == nil {
				t.Error("NewConnection() expected error, got nil")
			}
		})
	}
}

func TestNewSQLiteConnection_MissingFile(t *testing.T) {
	_, err := NewSQLiteConnection(context.Background(), Config{
		Engine: EngineSQLite,
		Path:   "/nonexistent/dir/app.db",
	})
	if err == nil {
		t.Fatal("NewSQLiteConnection() expected error for missing file")
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("NewSQLiteConnection() error type = %T, want *ConnectionError", err)
	}
}

func TestConnectionError_Format(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &ConnectionError{Engine: EnginePostgres, Err: cause}

	if !strings.Contains(err.Error(), "postgres") {
		t.Errorf("Error() = %q, want it to name the engine", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() failed to unwrap cause")
	}
}

func TestSubprocessError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *SubprocessError
		want []string
	}{
		{
			name: "stderr only",
			err:  &SubprocessError{Command: "pg_dump", ExitCode: 1, Stderr: "connection refused\n"},
			want: []string{"pg_dump", "exit code 1", "connection refused"},
		},
		{
			name: "both streams",
			err:  &SubprocessError{Command: "psql", ExitCode: 2, Stderr: "ERROR: syntax", Stdout: "BEGIN"},
			want: []string{"psql", "exit code 2", "ERROR: syntax", "BEGIN"},
		},
		{
			name: "no output",
			err:  &SubprocessError{Command: "mysqldump", ExitCode: 127},
			want: []string{"mysqldump", "exit code 127"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("Error() = %q, want to contain %q", msg, w)
				}
			}
		})
	}
}

func TestStreamError_Unwrap(t *testing.T) {
	err := &StreamError{Op: "write", Err: io.ErrClosedPipe}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("errors.Is() failed to unwrap cause")
	}
	if !strings.Contains(err.Error(), "write") {
		t.Errorf("Error() = %q, want to contain op", err.Error())
	}
}
