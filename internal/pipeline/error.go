package pipeline

import (
	"errors"
	"fmt"
)

// Step errors wrap the underlying failure and carry the child exit code so
// the CLI can surface it as the process exit code. Exactly one of them is
// produced per run; the first failing step aborts the sequence.

// FetchError reports a toolkit fetch failure (source unreachable,
// destination conflict, or missing checkout when fetch is skipped).
type FetchError struct {
	Err  error
	Code int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch step failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExitCode returns the exit code the orchestrator should exit with.
func (e *FetchError) ExitCode() int { return e.Code }

// GenerationError reports a failure of the toolkit's generation entry point.
type GenerationError struct {
	Err  error
	Code int
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation step failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ExitCode returns the exit code the orchestrator should exit with.
func (e *GenerationError) ExitCode() int { return e.Code }

// PostProcessError reports a metadata-creation failure (missing interpreter
// or script, or non-zero script exit).
type PostProcessError struct {
	Err  error
	Code int
}

func (e *PostProcessError) Error() string {
	return fmt.Sprintf("post-process step failed: %v", e.Err)
}

func (e *PostProcessError) Unwrap() error { return e.Err }

// ExitCode returns the exit code the orchestrator should exit with.
func (e *PostProcessError) ExitCode() int { return e.Code }

// ExitCode maps a pipeline error to the process exit code: the failing
// child's exit code when known, 1 otherwise, 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.ExitCode()
	}

	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.ExitCode()
	}

	var postErr *PostProcessError
	if errors.As(err, &postErr) {
		return postErr.ExitCode()
	}

	return 1
}
