package fetch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
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
	return nil, nil, nil, called.Error(3)
}

const testRepo = "https://example.com/LibriMix.git"

// --- Tests ---

func TestFetcher_ClonesAndWritesMarker(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "LibriMix")

	m := new(MockRunner)
	m.On("Run", mock.Anything, "git", []string{"clone", testRepo, dest}, "").
		Run(func(mock.Arguments) {
			// A real clone materializes the checkout.
			require.NoError(t, os.MkdirAll(dest, 0o755))
		}).
		Return([]byte(nil), []byte(nil), nil).Once()

	f := New(m)
	path, reused, err := f.Fetch(context.Background(), testRepo, "", dest)

	require.NoError(t, err)
	assert.Equal(t, dest, path)
	assert.False(t, reused)

	marker, err := os.ReadFile(filepath.Join(dest, markerFilename))
	require.NoError(t, err)
	assert.Equal(t, "repo: "+testRepo+"\nrevision: \n", string(marker))

	m.AssertExpectations(t)
}

func TestFetcher_ChecksOutPinnedRevision(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "LibriMix")

	m := new(MockRunner)
	m.On("Run", mock.Anything, "git", []string{"clone", testRepo, dest}, "").
		Run(func(mock.Arguments) {
			require.NoError(t, os.MkdirAll(dest, 0o755))
		}).
		Return([]byte(nil), []byte(nil), nil).Once()
	m.On("Run", mock.Anything, "git", []string{"checkout", "v1.2"}, dest).
		Return([]byte(nil), []byte(nil), nil).Once()

	f := New(m)
	_, _, err := f.Fetch(context.Background(), testRepo, "v1.2", dest)

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestFetcher_ReusesMatchingCheckout(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "LibriMix")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dest, markerFilename),
		[]byte(markerContent(testRepo, "")), 0o644))

	m := new(MockRunner)

	f := New(m)
	path, reused, err := f.Fetch(context.Background(), testRepo, "", dest)

	require.NoError(t, err)
	assert.Equal(t, dest, path)
	assert.True(t, reused)
	m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFetcher_RefetchesWhenPinChanges(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "LibriMix")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dest, markerFilename),
		[]byte(markerContent(testRepo, "v1.0")), 0o644))

	m := new(MockRunner)
	m.On("Run", mock.Anything, "git", []string{"clone", testRepo, dest}, "").
		Run(func(mock.Arguments) {
			require.NoError(t, os.MkdirAll(dest, 0o755))
		}).
		Return([]byte(nil), []byte(nil), nil).Once()
	m.On("Run", mock.Anything, "git", []string{"checkout", "v2.0"}, dest).
		Return([]byte(nil), []byte(nil), nil).Once()

	f := New(m)
	_, reused, err := f.Fetch(context.Background(), testRepo, "v2.0", dest)

	require.NoError(t, err)
	assert.False(t, reused)
	m.AssertExpectations(t)
}

func TestFetcher_ConflictingDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "LibriMix")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stray.txt"), []byte("x"), 0o644))

	m := new(MockRunner)

	f := New(m)
	_, _, err := f.Fetch(context.Background(), testRepo, "", dest)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, dest, conflict.Dir)
	m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFetcher_RetriesTransientFailures(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "LibriMix")

	m := new(MockRunner)
	m.On("Run", mock.Anything, "git", []string{"clone", testRepo, dest}, "").
		Return([]byte(nil), []byte("fatal: unable to access"), errors.New("exit status 128")).Once()
	m.On("Run", mock.Anything, "git", []string{"clone", testRepo, dest}, "").
		Run(func(mock.Arguments) {
			require.NoError(t, os.MkdirAll(dest, 0o755))
		}).
		Return([]byte(nil), []byte(nil), nil).Once()

	f := New(m, WithRetries(1), WithRetryDelay(time.Millisecond))
	_, _, err := f.Fetch(context.Background(), testRepo, "", dest)

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestFetcher_GivesUpAfterRetries(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "LibriMix")

	m := new(MockRunner)
	m.On("Run", mock.Anything, "git", []string{"clone", testRepo, dest}, "").
		Return([]byte(nil), []byte("fatal: repository not found"), errors.New("exit status 128")).Times(3)

	f := New(m, WithRetries(2), WithRetryDelay(time.Millisecond))
	_, _, err := f.Fetch(context.Background(), testRepo, "", dest)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository not found")
	m.AssertExpectations(t)
}

func TestFetcher_EmptyRepo(t *testing.T) {
	f := New(new(MockRunner))
	_, _, err := f.Fetch(context.Background(), "  ", "", t.TempDir())
	require.Error(t, err)
}

func TestVerifyCheckout(t *testing.T) {
	dir := t.TempDir()

	err := VerifyCheckout(dir, "generate_librimix.sh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "generate_librimix.sh"), []byte("#!/bin/bash\n"), 0o755))
	assert.NoError(t, VerifyCheckout(dir, "generate_librimix.sh"))

	assert.Error(t, VerifyCheckout(filepath.Join(dir, "absent"), "generate_librimix.sh"))
}
