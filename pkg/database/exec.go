package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// relayBufferSize bounds the relay loops: reads and writes proceed in
// lockstep through one fixed buffer, which is also the backpressure
// bound of every subprocess transfer.
const relayBufferSize = 16 * 1024

// relay copies src into dst in fixed relayBufferSize chunks until EOF.
// A sink write failure aborts immediately; the caller is responsible
// for reaping any subprocess behind either side.
func relay(dst io.Writer, src io.Reader) error {
	buf := make([]byte, relayBufferSize)

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return &StreamError{Op: "write", Err: werr}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &StreamError{Op: "read", Err: rerr}
		}
	}
}

// newCommand builds a command that runs in its own process group and
// whose entire group is killed when ctx is cancelled. Abandoning the
// calling goroutine alone would leak the child, so cancellation is
// wired to the group explicitly.
func newCommand(ctx context.Context, path string, args []string, extraEnv ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}
	return cmd
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// streamOutput spawns cmd with stdout piped and stderr captured, and
// relays stdout into w. On non-zero exit the captured stderr becomes
// the failure detail; a sink write failure aborts the child instead.
func streamOutput(cmd *exec.Cmd, w io.Writer) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to pipe %s stdout: %w", commandName(cmd), err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", commandName(cmd), err)
	}

	if err := relay(w, stdout); err != nil {
		killGroup(cmd)
		cmd.Wait()
		return err
	}

	if err := cmd.Wait(); err != nil {
		return subprocessError(cmd, err, stderr.String(), "")
	}
	return nil
}

// streamInput spawns cmd with stdin piped, relays r into stdin and
// closes it once r is exhausted, signaling end-of-input to the child.
// Non-zero exit returns both captured standard streams.
func streamInput(cmd *exec.Cmd, r io.Reader) error {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to pipe %s stdin: %w", commandName(cmd), err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", commandName(cmd), err)
	}

	if err := relay(stdin, r); err != nil {
		stdin.Close()
		killGroup(cmd)
		cmd.Wait()
		return err
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return subprocessError(cmd, err, stderr.String(), stdout.String())
	}
	return nil
}

// runCommand executes an administrative command to completion. Each
// admin step is checked independently, so a failure here aborts the
// enclosing operation before any later step runs.
func runCommand(cmd *exec.Cmd) error {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return subprocessError(cmd, err, stderr.String(), "")
	}
	return nil
}

func subprocessError(cmd *exec.Cmd, err error, stderr, stdout string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &SubprocessError{
			Command:  commandName(cmd),
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr,
			Stdout:   stdout,
		}
	}
	return fmt.Errorf("%s process failed: %w", commandName(cmd), err)
}

func commandName(cmd *exec.Cmd) string {
	return filepath.Base(cmd.Path)
}
