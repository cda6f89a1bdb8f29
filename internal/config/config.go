package config

// Config holds the main configuration for a preparation run.
//
// Every field has a flag and environment-variable counterpart; flags win
// over environment variables, which win over the file.
type Config struct {
	Version    string        `json:"version,omitempty"     yaml:"version,omitempty"`
	StorageDir string        `json:"storage_dir,omitempty" yaml:"storage_dir,omitempty"`
	PythonPath string        `json:"python_path,omitempty" yaml:"python_path,omitempty"`
	Toolkit    ToolkitConfig `json:"toolkit,omitempty"     yaml:"toolkit,omitempty"`
	Steps      StepsConfig   `json:"steps,omitempty"       yaml:"steps,omitempty"`
}

// ToolkitConfig describes where the generation toolkit comes from and
// where its checkout lives.
type ToolkitConfig struct {
	Repo     string `json:"repo,omitempty"     yaml:"repo,omitempty"`
	Revision string `json:"revision,omitempty" yaml:"revision,omitempty"`
	Dir      string `json:"dir,omitempty"      yaml:"dir,omitempty"`
}

// StepsConfig holds per-step tuning.
type StepsConfig struct {
	Fetch       StepConfig `json:"fetch,omitempty"        yaml:"fetch,omitempty"`
	Generate    StepConfig `json:"generate,omitempty"     yaml:"generate,omitempty"`
	PostProcess StepConfig `json:"post_process,omitempty" yaml:"post_process,omitempty"`
}

// StepConfig carries free-form step parameters (timeout_minutes, retries),
// read through mapsafe with per-step defaults.
type StepConfig struct {
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		PythonPath: DefaultPythonPath,
		Toolkit: ToolkitConfig{
			Repo: DefaultToolkitRepo,
			Dir:  DefaultToolkitDir,
		},
	}
}
