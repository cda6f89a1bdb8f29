// Package envvar centralizes the environment variable names recognized by
// librimix-prep.
package envvar

const (
	// Env selects the runtime environment (development, production)
	Env = "LIBRIMIX_PREP_ENV"

	// StorageDir is the fallback for --storage_dir
	StorageDir = "LIBRIMIX_PREP_STORAGE_DIR"

	// PythonPath is the fallback for --python_path
	PythonPath = "LIBRIMIX_PREP_PYTHON_PATH"

	// Config is the fallback for --config
	Config = "LIBRIMIX_PREP_CONFIG"

	// ToolkitRepo is the fallback for --toolkit_repo
	ToolkitRepo = "LIBRIMIX_PREP_TOOLKIT_REPO"

	// ToolkitRevision is the fallback for --toolkit_revision
	ToolkitRevision = "LIBRIMIX_PREP_TOOLKIT_REVISION"

	// LogFile is the fallback for --log-file
	LogFile = "LIBRIMIX_PREP_LOG_FILE"

	// Verbose is the fallback for --verbose
	Verbose = "LIBRIMIX_PREP_VERBOSE"
)
