// Package cli defines the librimix-prep command-line surface.
package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/asteroid-team/librimix-prep/internal/config"
	"github.com/asteroid-team/librimix-prep/internal/env"
	"github.com/asteroid-team/librimix-prep/internal/envvar"
	"github.com/asteroid-team/librimix-prep/internal/logger"
	"github.com/asteroid-team/librimix-prep/internal/pipeline"
	"github.com/asteroid-team/librimix-prep/internal/xfs"
)

// New builds the CLI application. Option names follow the original recipe
// (underscore style); every flag also reads an environment variable.
// Unrecognized options are rejected by the framework with a non-zero exit.
func New() *cli.App {
	return &cli.App{
		Name:  "librimix-prep",
		Usage: "fetch the LibriMix toolkit, generate the dataset, and create local metadata",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "storage_dir",
				Usage:   "directory the toolkit materializes the dataset under (passed through unchanged)",
				EnvVars: []string{envvar.StorageDir},
			},
			&cli.StringFlag{
				Name:    "python_path",
				Value:   config.DefaultPythonPath,
				Usage:   "interpreter used for the metadata-creation script",
				EnvVars: []string{envvar.PythonPath},
			},
			&cli.StringFlag{
				Name:    "config",
				Value:   defaultConfigFile(),
				Usage:   "path to a YAML config file (flags override it)",
				EnvVars: []string{envvar.Config},
			},
			&cli.StringFlag{
				Name:    "toolkit_repo",
				Value:   config.DefaultToolkitRepo,
				Usage:   "generation toolkit repository to fetch",
				EnvVars: []string{envvar.ToolkitRepo},
			},
			&cli.StringFlag{
				Name:    "toolkit_revision",
				Usage:   "git revision to pin the toolkit to",
				EnvVars: []string{envvar.ToolkitRevision},
			},
			&cli.BoolFlag{
				Name:  "skip-fetch",
				Usage: "reuse an existing toolkit checkout instead of cloning",
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "also write logs to this file (rotated)",
				EnvVars: []string{envvar.LogFile},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
				EnvVars: []string{envvar.Verbose},
			},
		},
		Action: run,
	}
}

// defaultConfigFile returns the conventional config file path when one
// exists there, so a plain `librimix-prep` picks it up without --config.
func defaultConfigFile() string {
	path := filepath.Join(config.DefaultConfigPath(), "config.yaml")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}

func run(c *cli.Context) error {
	setupLogging(c)

	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg, pipeline.WithSkipFetch(c.Bool("skip-fetch")))
	if err := p.Run(ctx); err != nil {
		slog.Error("Preparation failed", "error", err)
		return cli.Exit(err.Error(), pipeline.ExitCode(err))
	}

	slog.Info("Preparation complete", "storage_dir", cfg.StorageDir)
	return nil
}

func setupLogging(c *cli.Context) {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}

	opts := []logger.Option{logger.WithLevel(level)}
	if logFile := c.String("log-file"); logFile != "" {
		opts = append(opts, logger.WithLogToFile(true), logger.WithLogFile(xfs.ExpandTilde(logFile)))
	}

	slog.SetDefault(logger.New(env.FromEnv(), opts...))
}

// resolveConfig merges the optional config file with the flags. Flags (and
// their environment fallbacks) win over the file; the storage directory is
// deliberately not normalized or defaulted, it passes through as given.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.New()

	if path := c.String("config"); path != "" {
		loaded, err := config.LoadAndValidate(xfs.ExpandTilde(path))
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("storage_dir") {
		cfg.StorageDir = c.String("storage_dir")
	}
	if c.IsSet("python_path") {
		cfg.PythonPath = c.String("python_path")
	}
	if c.IsSet("toolkit_repo") {
		cfg.Toolkit.Repo = c.String("toolkit_repo")
	}
	if c.IsSet("toolkit_revision") {
		cfg.Toolkit.Revision = c.String("toolkit_revision")
	}

	return cfg, nil
}
