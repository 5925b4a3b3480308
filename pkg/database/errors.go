package database

import (
	"fmt"
	"strings"
)

// ConnectionError reports a connect or connectivity-test failure,
// wrapping the underlying network or auth cause.
type ConnectionError struct {
	Engine string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Engine, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SubprocessError reports a dump/restore utility that exited non-zero,
// carrying whatever the child wrote to its standard streams.
type SubprocessError struct {
	Command  string
	ExitCode int
	Stderr   string
	Stdout   string
}

func (e *SubprocessError) Error() string {
	msg := fmt.Sprintf("%s failed with exit code %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	if s := strings.TrimSpace(e.Stdout); s != "" {
		msg += " (stdout: " + s + ")"
	}
	return msg
}

// StreamError reports a mid-transfer failure on either end of the
// subprocess relay. Op is "read" or "write".
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s failed: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// VersionParseError reports a server version string the engine parser
// could not make sense of.
type VersionParseError struct {
	Engine string
	Raw    string
}

func (e *VersionParseError) Error() string {
	return fmt.Sprintf("unparsable %s version string: %q", e.Engine, e.Raw)
}
