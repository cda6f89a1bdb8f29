// Package pipeline sequences the three preparation steps: fetch the
// toolkit, run its generation entry point, run the metadata script.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/asteroid-team/librimix-prep/internal/config"
	"github.com/asteroid-team/librimix-prep/internal/fetch"
	"github.com/asteroid-team/librimix-prep/internal/mapsafe"
	"github.com/asteroid-team/librimix-prep/internal/runner"
	"github.com/asteroid-team/librimix-prep/internal/watch"
	"github.com/asteroid-team/librimix-prep/internal/xfs"
)

// Pipeline orchestrates one preparation run. Steps execute in strict
// sequence; the first failure aborts the run with a typed step error.
//
// No step changes the orchestrator's working directory: children that must
// run inside the toolkit checkout get it as their own working directory.
type Pipeline struct {
	cfg       *config.Config
	runner    runner.CommandRunner
	out       io.Writer
	skipFetch bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRunner substitutes the command runner (used by tests).
func WithRunner(r runner.CommandRunner) Option {
	return func(p *Pipeline) {
		p.runner = r
	}
}

// WithOutput redirects child output, which otherwise goes to stdout.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.out = w
	}
}

// WithSkipFetch reuses an existing toolkit checkout instead of cloning.
// The checkout and its generation entry point are still verified.
func WithSkipFetch(skip bool) Option {
	return func(p *Pipeline) {
		p.skipFetch = skip
	}
}

// New creates a Pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		runner: runner.ExecCommandRunner{},
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes fetch, generate, and post-process in order and returns the
// first step error, or nil when all three succeed.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.fetchToolkit(ctx); err != nil {
		return err
	}

	if err := p.generate(ctx); err != nil {
		return err
	}

	return p.postProcess(ctx)
}

// fetchToolkit materializes (or verifies) the toolkit checkout.
func (p *Pipeline) fetchToolkit(ctx context.Context) error {
	toolkit := p.cfg.Toolkit

	if p.skipFetch {
		slog.Info("Skipping toolkit fetch", "path", toolkit.Dir)
		if err := fetch.VerifyCheckout(toolkit.Dir, config.GenerateScript); err != nil {
			return &FetchError{Err: err, Code: 1}
		}
		return nil
	}

	params := p.cfg.Steps.Fetch.Params
	fetcher := fetch.New(p.runner,
		fetch.WithRetries(mapsafe.Get(params, "retries", 3)),
	)

	ctx, cancel := stepContext(ctx, params, 30*time.Minute)
	defer cancel()

	if _, _, err := fetcher.Fetch(ctx, toolkit.Repo, toolkit.Revision, toolkit.Dir); err != nil {
		return &FetchError{Err: err, Code: runner.ExitCode(err, 1)}
	}

	if err := fetch.VerifyCheckout(toolkit.Dir, config.GenerateScript); err != nil {
		return &FetchError{Err: err, Code: 1}
	}

	return nil
}

// generate runs the toolkit's generation entry point inside the checkout,
// passing the storage directory through unchanged as its sole argument.
func (p *Pipeline) generate(ctx context.Context) error {
	params := p.cfg.Steps.Generate.Params
	timeout := mapsafe.Minutes(params, "timeout_minutes", 0)

	executor := runner.NewExecutorWithRunner(p.cfg.Toolkit.Dir, timeout, p.runner)

	progress := p.watchStorage()
	if progress != nil {
		defer func() {
			if err := progress.Close(); err != nil {
				slog.Debug("Failed to close progress watcher", "error", err)
			}
		}()
	}

	slog.Info("Running generation script", "script", config.GenerateScript, "storage_dir", p.cfg.StorageDir)

	ch, err := executor.Stream(ctx, "bash", config.GenerateScript, p.cfg.StorageDir)
	if err != nil {
		return &GenerationError{Err: err, Code: runner.ExitCode(err, 1)}
	}

	for chunk := range ch {
		if len(chunk.Data) > 0 {
			if _, err := p.out.Write(chunk.Data); err != nil {
				slog.Debug("Failed to forward generation output", "error", err)
			}
		}
		if chunk.Error != nil {
			return &GenerationError{Err: chunk.Error, Code: runner.ExitCode(chunk.Error, 1)}
		}
	}

	if progress != nil {
		slog.Info("Generation finished", "entries_created", progress.FileCount())
	} else {
		slog.Info("Generation finished")
	}

	return nil
}

// watchStorage starts the dataset progress watcher over the storage
// directory. Watcher failure is never fatal.
func (p *Pipeline) watchStorage() *watch.Progress {
	dir := p.cfg.StorageDir
	if dir == "" {
		return nil
	}

	// The generation script is what creates the tree; make sure the
	// root exists so progress reporting covers a first run too.
	if err := xfs.EnsureDir(dir); err != nil {
		slog.Debug("Progress reporting disabled", "path", dir, "error", err)
		return nil
	}

	progress, err := watch.NewProgress(dir)
	if err != nil {
		slog.Debug("Progress reporting disabled", "path", dir, "error", err)
		return nil
	}

	return progress
}

// postProcess runs the metadata-creation script from the invocation
// directory against the generated dataset tree.
func (p *Pipeline) postProcess(ctx context.Context) error {
	params := p.cfg.Steps.PostProcess.Params
	timeout := mapsafe.Minutes(params, "timeout_minutes", 0)

	executor := runner.NewExecutorWithRunner("", timeout, p.runner)

	librimixDir := p.cfg.StorageDir + "/" + config.DatasetSubdir

	slog.Info("Creating local metadata", "interpreter", p.cfg.PythonPath, "librimix_dir", librimixDir)

	stdout, stderr, err := executor.Execute(ctx, p.cfg.PythonPath,
		config.MetadataScript, "--librimix_dir", librimixDir)
	if len(stdout) > 0 {
		if _, werr := p.out.Write(stdout); werr != nil {
			slog.Debug("Failed to forward metadata output", "error", werr)
		}
	}
	if err != nil {
		if s := strings.TrimSpace(string(stderr)); s != "" {
			slog.Error("Metadata script failed", "error", err, "stderr", s)
		}
		return &PostProcessError{Err: err, Code: runner.ExitCode(err, 1)}
	}

	slog.Info("Metadata created", "librimix_dir", librimixDir)
	return nil
}

// stepContext applies a per-step timeout from the step params. A zero
// default with no override leaves the parent deadline in place.
func stepContext(ctx context.Context, params map[string]any, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := mapsafe.Minutes(params, "timeout_minutes", fallback)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
