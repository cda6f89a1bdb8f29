// Package env identifies the runtime environment the tool runs under.
package env

import (
	"os"
	"strings"

	"github.com/asteroid-team/librimix-prep/internal/envvar"
)

// Environment is the runtime environment identifier.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// FromEnv resolves the environment from the process environment.
// Anything that is not recognizably production counts as development.
func FromEnv() Environment {
	switch strings.ToLower(os.Getenv(envvar.Env)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
