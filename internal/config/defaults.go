package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	// DefaultToolkitRepo is the upstream LibriMix generation toolkit.
	DefaultToolkitRepo = "https://github.com/JorisCos/LibriMix"

	// DefaultToolkitDir is the checkout directory, relative to the working
	// directory the tool is invoked from.
	DefaultToolkitDir = "LibriMix"

	// DefaultPythonPath is the interpreter used for the metadata step.
	DefaultPythonPath = "python"

	// GenerateScript is the toolkit's generation entry point, relative to
	// the checkout.
	GenerateScript = "generate_librimix.sh"

	// MetadataScript is the metadata-creation script, relative to the
	// directory the tool is invoked from.
	MetadataScript = "local/create_local_metadata.py"

	// DatasetSubdir is the fixed directory the toolkit materializes the
	// dataset under, relative to the storage directory.
	DatasetSubdir = "LibriMix"
)

// DefaultConfigPath returns the default directory for the librimix-prep
// config file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "librimix-prep")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "librimix-prep")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "librimix-prep")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "librimix-prep")
		}
		return filepath.Join(home, ".config", "librimix-prep")
	}
}
