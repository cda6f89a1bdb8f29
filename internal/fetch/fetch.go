// Package fetch materializes the generation toolkit checkout.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asteroid-team/librimix-prep/internal/runner"
	"github.com/asteroid-team/librimix-prep/internal/xfs"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultRetries    = 3
	markerFilename    = ".librimix-prep-fetched"
)

// ConflictError reports a destination directory that already exists with
// contents this tool did not put there.
type ConflictError struct {
	Dir string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("fetch: destination %s already exists and is not a librimix-prep checkout", e.Dir)
}

// Fetcher clones the toolkit repository through the command runner.
type Fetcher struct {
	runner     runner.CommandRunner
	retries    int
	retryDelay time.Duration
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRetries sets how many clone attempts are made. Zero means a single
// attempt with no retry.
func WithRetries(n int) Option {
	return func(f *Fetcher) {
		f.retries = n
	}
}

// WithRetryDelay sets the pause between clone attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.retryDelay = d
	}
}

// New creates a Fetcher backed by r.
func New(r runner.CommandRunner, opts ...Option) *Fetcher {
	f := &Fetcher{
		runner:     r,
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch clones repo (at revision, when non-empty) into destDir. It is
// idempotent: a checkout whose marker matches repo and revision is reused.
// The second return reports whether an existing checkout was reused.
func (f *Fetcher) Fetch(ctx context.Context, repo, revision, destDir string) (string, bool, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return "", false, errors.New("fetch: empty toolkit repository")
	}

	markerPath := filepath.Join(destDir, markerFilename)
	marker := markerContent(repo, revision)

	if _, err := os.Stat(markerPath); err == nil {
		if !shouldRefetch(markerPath, marker) {
			slog.Info("Toolkit already fetched and up-to-date (marker match), skipping", "repo", repo, "path", destDir)
			return destDir, true, nil
		}

		// The checkout is ours but pinned to something else; replace it.
		if err := os.RemoveAll(destDir); err != nil {
			return "", false, fmt.Errorf("fetch: failed to remove stale checkout: %w", err)
		}
	}

	hasEntries, err := xfs.DirHasEntries(destDir)
	if err != nil {
		return "", false, fmt.Errorf("fetch: failed to inspect destination: %w", err)
	}
	if hasEntries {
		return "", false, &ConflictError{Dir: destDir}
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			slog.Info("Retrying fetch", "repo", repo, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", false, fmt.Errorf("fetch: canceled: %w", ctx.Err())
			case <-time.After(f.retryDelay):
			}
		} else {
			slog.Info("Fetching toolkit", "repo", repo, "path", destDir)
		}

		lastErr = f.clone(ctx, repo, revision, destDir)
		if lastErr == nil {
			if err := os.WriteFile(markerPath, []byte(marker), 0o644); err != nil {
				slog.Warn("Failed to write fetch marker", "path", markerPath, "error", err)
			}

			slog.Info("Toolkit fetched successfully", "repo", repo, "path", destDir, "attempt", attempt+1)
			return destDir, false, nil
		}

		slog.Error("Failed to fetch toolkit", "repo", repo, "path", destDir, "attempt", attempt+1, "error", lastErr)

		if ctx.Err() != nil {
			return "", false, fmt.Errorf("fetch: canceled: %w", lastErr)
		}

		// A failed clone can leave a partial checkout behind. The
		// destination was empty or missing before the first attempt,
		// so removing it is safe.
		if err := os.RemoveAll(destDir); err != nil {
			return "", false, fmt.Errorf("fetch: failed to clean partial checkout: %w", err)
		}
	}

	return "", false, lastErr
}

func (f *Fetcher) clone(ctx context.Context, repo, revision, destDir string) error {
	_, stderr, err := f.runner.Run(ctx, "git", []string{"clone", repo, destDir}, "")
	if err != nil {
		return cloneError("clone", err, stderr)
	}

	if revision != "" {
		_, stderr, err := f.runner.Run(ctx, "git", []string{"checkout", revision}, destDir)
		if err != nil {
			return cloneError("checkout", err, stderr)
		}
	}

	return nil
}

func cloneError(op string, err error, stderr []byte) error {
	if s := strings.TrimSpace(string(stderr)); s != "" {
		return fmt.Errorf("git %s failed: %w: %s", op, err, s)
	}
	return fmt.Errorf("git %s failed: %w", op, err)
}

// VerifyCheckout checks that dir holds a checkout containing the given
// entry-point script. Used when the fetch step is skipped.
func VerifyCheckout(dir, script string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("fetch: toolkit checkout missing: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("fetch: toolkit path %s is not a directory", dir)
	}

	scriptPath := filepath.Join(dir, script)
	if info, err := os.Stat(scriptPath); err != nil || info.IsDir() {
		return fmt.Errorf("fetch: generation entry point %s not found", scriptPath)
	}

	return nil
}

// markerContent generates the expected content of the marker file.
// Used to detect if we need to refetch due to config change.
func markerContent(repo, revision string) string {
	return fmt.Sprintf("repo: %s\nrevision: %s\n", repo, revision)
}

// shouldRefetch checks if the toolkit should be refetched by comparing marker content.
func shouldRefetch(markerPath, expectedContent string) bool {
	content, err := os.ReadFile(markerPath)
	if err != nil {
		slog.Debug("Marker file missing or unreadable", "path", markerPath, "error", err)
		return true
	}

	if string(content) != expectedContent {
		slog.Info("Toolkit pin changed (marker mismatch), will refetch",
			"marker_path", markerPath,
			"expected_snippet", expectedContent,
			"actual_snippet", string(content))
		return true
	}

	return false
}
