package config

import (
	"time"

	"github.com/ekisa-team/beam/model"
)

const (
	// DefaultDrainTimeout bounds how long shutdown waits for background hooks.
	DefaultDrainTimeout = 5 * time.Second

	// DefaultLogLevel is used when the manifest does not set one.
	DefaultLogLevel = "info"
)

// Manifest is the static descriptor of a host application.
type Manifest struct {
	Version     string            `json:"version"              yaml:"version"`
	Application ApplicationConfig `json:"application"          yaml:"application"`
	Metadata    map[string]string `json:"metadata,omitempty"   yaml:"metadata,omitempty"`
	Background  BackgroundConfig  `json:"background,omitempty" yaml:"background,omitempty"`
	Log         LogConfig         `json:"log,omitempty"        yaml:"log,omitempty"`
	Metrics     EndpointConfig    `json:"metrics,omitempty"    yaml:"metrics,omitempty"`
	Health      EndpointConfig    `json:"health,omitempty"     yaml:"health,omitempty"`
}

// ApplicationConfig identifies the host application.
type ApplicationConfig struct {
	Name        string `json:"name"                  yaml:"name"`
	Version     string `json:"version,omitempty"     yaml:"version,omitempty"`
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// BackgroundConfig tunes the serial background worker.
type BackgroundConfig struct {
	DrainTimeout time.Duration `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `json:"level,omitempty"        yaml:"level,omitempty"`
	File       string `json:"file,omitempty"         yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"  yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"  yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
}

// EndpointConfig is a listen address. An empty address disables the endpoint.
type EndpointConfig struct {
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// Lookup returns the metadata value stored under key.
func (m *Manifest) Lookup(key string) (string, bool, error) {
	v, ok := m.Metadata[key]
	return v, ok, nil
}

// Models returns the keys listed under model.MetadataKey.
func (m *Manifest) Models() []model.Key {
	return model.ParseKeys(m.Metadata[model.MetadataKey])
}

func (m *Manifest) applyDefaults() {
	if m.Background.DrainTimeout <= 0 {
		m.Background.DrainTimeout = DefaultDrainTimeout
	}
	if m.Log.Level == "" {
		m.Log.Level = DefaultLogLevel
	}
}
