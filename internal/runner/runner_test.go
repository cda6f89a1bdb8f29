package runner

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock types ---

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args []string, dir string) ([]byte, []byte, error) {
	called := m.Called(ctx, name, args, dir)
	return called.Get(0).([]byte), called.Get(1).([]byte), called.Error(2)
}

func (m *MockRunner) Start(ctx context.Context, name string, args []string, dir string) (io.ReadCloser, io.ReadCloser, func() error, error) {
	called := m.Called(ctx, name, args, dir)
	if called.Get(3) != nil {
		return nil, nil, nil, called.Error(3)
	}
	return called.Get(0).(io.ReadCloser),
		called.Get(1).(io.ReadCloser),
		called.Get(2).(func() error),
		nil
}

// --- Tests ---

func TestExecutor_ExecutePassesWorkingDir(t *testing.T) {
	m := new(MockRunner)
	m.On("Run", mock.Anything, "bash", []string{"script.sh", "out"}, "/tmp/toolkit").
		Return([]byte("ok\n"), []byte(nil), nil)

	e := NewExecutorWithRunner("/tmp/toolkit", 0, m)
	stdout, _, err := e.Execute(context.Background(), "bash", "script.sh", "out")

	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(stdout))
	m.AssertExpectations(t)
}

func TestExecutor_StreamYieldsLines(t *testing.T) {
	m := new(MockRunner)
	m.On("Start", mock.Anything, "bash", []string{"script.sh"}, "").
		Return(
			io.NopCloser(strings.NewReader("one\ntwo\n")),
			io.NopCloser(strings.NewReader("")),
			func() error { return nil },
			nil,
		)

	e := NewExecutorWithRunner("", 0, m)
	ch, err := e.Stream(context.Background(), "bash", "script.sh")
	require.NoError(t, err)

	var lines []string
	var final StreamChunk
	for chunk := range ch {
		if chunk.Done {
			final = chunk
			continue
		}
		lines = append(lines, string(chunk.Data))
	}

	assert.Equal(t, []string{"one\n", "two\n"}, lines)
	assert.NoError(t, final.Error)
	m.AssertExpectations(t)
}

func TestExecutor_StreamSurfacesWaitErrorWithStderr(t *testing.T) {
	waitErr := errors.New("exit status 3")

	m := new(MockRunner)
	m.On("Start", mock.Anything, "bash", []string{"script.sh"}, "").
		Return(
			io.NopCloser(strings.NewReader("")),
			io.NopCloser(strings.NewReader("boom\n")),
			func() error { return waitErr },
			nil,
		)

	e := NewExecutorWithRunner("", 0, m)
	ch, err := e.Stream(context.Background(), "bash", "script.sh")
	require.NoError(t, err)

	var final StreamChunk
	for chunk := range ch {
		if chunk.Done {
			final = chunk
		}
	}

	require.Error(t, final.Error)
	assert.ErrorIs(t, final.Error, waitErr)
	assert.Contains(t, final.Error.Error(), "boom")
}

func TestExecutor_StreamReapsChildOnEarlyExit(t *testing.T) {
	pr, pw := io.Pipe()
	var reaped atomic.Bool

	m := new(MockRunner)
	m.On("Start", mock.Anything, "bash", []string{"script.sh"}, "").
		Return(
			io.ReadCloser(pr),
			io.NopCloser(strings.NewReader("")),
			func() error { reaped.Store(true); return errors.New("signal: killed") },
			nil,
		)

	e := NewExecutorWithRunner("", 0, m)
	ch, err := e.Stream(context.Background(), "bash", "script.sh")
	require.NoError(t, err)

	// Simulate the child dying mid-stream: its stdout errors out before EOF.
	pw.CloseWithError(errors.New("broken pipe"))

	var final StreamChunk
	for chunk := range ch {
		if chunk.Done {
			final = chunk
		}
	}

	// The child is still waited on, even though streaming ended early.
	require.Error(t, final.Error)
	assert.True(t, reaped.Load())
}

func TestExecutor_StreamStartFailure(t *testing.T) {
	m := new(MockRunner)
	m.On("Start", mock.Anything, "nope", []string(nil), "").
		Return(nil, nil, nil, errors.New("executable file not found"))

	e := NewExecutorWithRunner("", time.Second, m)
	_, err := e.Stream(context.Background(), "nope")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestExecCommandRunner_RunCapturesOutput(t *testing.T) {
	var r ExecCommandRunner

	stdout, stderr, err := r.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2"}, "")

	require.NoError(t, err)
	assert.Equal(t, "out\n", string(stdout))
	assert.Equal(t, "err\n", string(stderr))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil, 1))

	var r ExecCommandRunner
	_, _, err := r.Run(context.Background(), "sh", []string{"-c", "exit 7"}, "")
	require.Error(t, err)
	assert.Equal(t, 7, ExitCode(err, 1))

	// Wrapped exit errors still unwrap.
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, ExitCode(errors.Join(errors.New("step failed"), err), 1))

	// No exit status available falls back.
	assert.Equal(t, 1, ExitCode(errors.New("not found"), 1))
}
