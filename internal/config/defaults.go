package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/ekisa-team/beam/internal/envvar"
	"github.com/ekisa-team/beam/internal/xfs"
)

// DefaultConfigPath returns the default path for the beam config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "beam", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "beam")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "beam")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "beam")
		}
		return filepath.Join(home, ".config", "beam")
	}
}

// DefaultManifestPath returns the default manifest location.
func DefaultManifestPath() string {
	return filepath.Join(DefaultConfigPath(), "manifest.yaml")
}

// ResolveManifestPath returns the manifest path to load.
// Precedence:
// 1. BEAM_MANIFEST_PATH environment variable.
// 2. The given flag value.
// 3. Default manifest path.
func ResolveManifestPath(flagValue string) string {
	if p := os.Getenv(envvar.BeamManifestPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if flagValue != "" {
		return xfs.ExpandTilde(flagValue)
	}
	return DefaultManifestPath()
}

// ResolveSchemaPath returns the schema path to validate against; empty means
// the embedded schema.
func ResolveSchemaPath(flagValue string) string {
	if p := os.Getenv(envvar.BeamSchemaPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	return xfs.ExpandTilde(flagValue)
}
