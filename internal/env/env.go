// Package env resolves the deployment environment the process runs in.
package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/beam/internal/envvar"
)

// Environment is a deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// FromEnv reads the environment from BEAM_ENV, defaulting to Development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.BeamEnv))
}

// Parse maps common spellings to an Environment. Unknown values yield
// Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return Production
	case "stage", "staging":
		return Staging
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}

func (e Environment) String() string {
	return string(e)
}
