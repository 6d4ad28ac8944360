// Package model keeps one lazily created instance of every application model
// and drives the two lifecycle hooks each model exposes.
package model

import (
	"context"
	"strings"

	"github.com/ekisa-team/beam/host"
)

// MetadataKey is the host metadata entry holding the comma-separated list of
// models created eagerly by Registry.Init.
const MetadataKey = "MODEL"

// Key identifies a model type in the catalog.
type Key string

// Model is an application-level singleton.
type Model interface {
	// OnCreate runs on the goroutine that caused the model to be created,
	// right after construction.
	OnCreate(ctx context.Context, h *host.Host) error

	// OnCreateBackground runs later on the registry's serial background worker.
	OnCreateBackground(ctx context.Context, h *host.Host) error
}

// Factory is the no-argument constructor of a model.
type Factory func() (Model, error)

// Origin tells whether a model was created from the startup list or on first
// lookup.
type Origin string

const (
	// OriginEager marks models created from host metadata or Preload.
	OriginEager Origin = "eager"

	// OriginLazy marks models created by the first GetInstance call.
	OriginLazy Origin = "lazy"
)

// Hook names a model lifecycle hook.
type Hook string

const (
	HookOnCreate           Hook = "on_create"
	HookOnCreateBackground Hook = "on_create_background"
)

// ParseKeys splits a comma-separated model list, trimming every entry and
// dropping empty ones.
func ParseKeys(list string) []Key {
	parts := strings.Split(list, ",")
	keys := make([]Key, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		keys = append(keys, Key(p))
	}

	return keys
}
