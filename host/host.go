// Package host describes the application a model registry runs inside of:
// its identity, its static metadata and the logger models should use.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrMetadataUnavailable is returned when the metadata source cannot be read.
var ErrMetadataUnavailable = errors.New("host metadata unavailable")

// MetadataSource exposes the static string metadata of an application.
// Lookup reports ok=false for a missing key and a non-nil error only when the
// source itself cannot be read.
type MetadataSource interface {
	Lookup(key string) (value string, ok bool, err error)
}

// StaticMetadata is an in-memory MetadataSource.
type StaticMetadata map[string]string

// Lookup returns the value stored under key.
func (m StaticMetadata) Lookup(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// Host is the application context shared read-only by every model.
type Host struct {
	Name        string
	Version     string
	Environment string
	StartTime   time.Time

	logger   *slog.Logger
	metadata MetadataSource
}

// Option configures a Host.
type Option func(*Host)

// WithName sets the application name.
func WithName(name string) Option {
	return func(h *Host) {
		h.Name = name
	}
}

// WithVersion sets the application version.
func WithVersion(version string) Option {
	return func(h *Host) {
		h.Version = version
	}
}

// WithEnvironment sets the deployment environment name.
func WithEnvironment(environment string) Option {
	return func(h *Host) {
		h.Environment = environment
	}
}

// WithLogger sets the logger handed to models.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetadata sets the static metadata source.
func WithMetadata(source MetadataSource) Option {
	return func(h *Host) {
		h.metadata = source
	}
}

// New creates a Host. Without WithMetadata the host has no metadata.
func New(opts ...Option) *Host {
	h := &Host{
		StartTime: time.Now(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Logger returns the application logger.
func (h *Host) Logger() *slog.Logger {
	return h.logger
}

// Uptime returns the time elapsed since the host was created.
func (h *Host) Uptime() time.Duration {
	return time.Since(h.StartTime)
}

// Metadata returns the value stored under key. A missing key or a host
// without metadata yields ok=false.
func (h *Host) Metadata(key string) (string, bool, error) {
	if h.metadata == nil {
		return "", false, nil
	}

	v, ok, err := h.metadata.Lookup(key)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %w", ErrMetadataUnavailable, key, err)
	}

	return v, ok, nil
}
