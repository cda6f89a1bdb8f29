// Package runner wraps os/exec behind a small interface so every external
// invocation in the tool can be substituted in tests.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// CommandRunner is the interface for running external commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, dir string) (stdout, stderr []byte, err error)
	Start(ctx context.Context, name string, args []string, dir string) (stdout, stderr io.ReadCloser, wait func() error, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command to completion, capturing its output.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, dir string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Start starts a command and hands back its output pipes.
func (ExecCommandRunner) Start(ctx context.Context, name string, args []string, dir string) (stdout, stderr io.ReadCloser, wait func() error, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	return stdoutPipe, stderrPipe, cmd.Wait, nil
}

// StreamChunk represents a single line of child output.
type StreamChunk struct {
	// Data is the chunk content.
	Data []byte

	// Done indicates if this is the final chunk.
	Done bool

	// Error if something went wrong.
	Error error
}

// Executor binds a runner to a working directory and timeout.
//
// The child process gets dir as its working directory; the orchestrator's
// own working directory is never changed.
type Executor struct {
	runner  CommandRunner
	dir     string
	timeout time.Duration
}

// NewExecutorWithRunner creates an executor running children in dir
// through the given runner. An empty dir means the process working
// directory; a zero timeout means no deadline.
func NewExecutorWithRunner(dir string, timeout time.Duration, runner CommandRunner) *Executor {
	return &Executor{
		runner:  runner,
		dir:     dir,
		timeout: timeout,
	}
}

// Execute runs the command to completion and returns its captured output.
func (e *Executor) Execute(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.runner.Run(ctx, name, args, e.dir)
}

// Stream runs the command and streams its stdout line by line. The final
// chunk carries the wait error, with stderr folded in when present.
func (e *Executor) Stream(ctx context.Context, name string, args ...string) (<-chan StreamChunk, error) {
	ctx, cancel := e.withTimeout(ctx)

	stdout, stderr, wait, err := e.runner.Start(ctx, name, args, e.dir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("runner: failed to start %s: %w", name, err)
	}

	ch := make(chan StreamChunk, 32)

	go func() {
		defer close(ch)
		defer cancel()

		// Read stderr in background
		stderrBuf := new(bytes.Buffer)
		stderrDone := make(chan struct{})
		go func() {
			if _, err := io.Copy(stderrBuf, stderr); err != nil {
				slog.Error("Failed to read stderr", "command", name, "error", err)
			}
			close(stderrDone)
		}()

		// Any early exit must still reap the child, or the killed
		// process lingers until the orchestrator itself exits.
		reap := func(reason string) {
			if err := wait(); err != nil {
				slog.Debug("Child reaped", "command", name, "reason", reason, "error", err)
			}
		}

		// Stream stdout
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- StreamChunk{Error: ctx.Err(), Done: true}
				reap("canceled")
				return
			case ch <- StreamChunk{Data: append(scanner.Bytes(), '\n')}:
			}
		}

		if err := scanner.Err(); err != nil {
			ch <- StreamChunk{Error: err, Done: true}
			reap("read failure")
			return
		}

		<-stderrDone
		err := wait()

		if err != nil {
			if s := stderrBuf.String(); s != "" {
				ch <- StreamChunk{Error: fmt.Errorf("%w: %s", err, s), Done: true}
			} else {
				ch <- StreamChunk{Error: err, Done: true}
			}
		} else {
			ch <- StreamChunk{Done: true}
		}
	}()

	return ch, nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// ExitCode extracts the child exit code from an error returned by Execute
// or carried in a final StreamChunk. It returns fallback when the error
// holds no exit status (e.g. the binary was not found).
func ExitCode(err error, fallback int) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return fallback
}
