package model

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/beam/host"
)

// --- Mock types ---

type MockModel struct {
	mock.Mock
}

func (m *MockModel) OnCreate(ctx context.Context, h *host.Host) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockModel) OnCreateBackground(ctx context.Context, h *host.Host) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) ModelCreated(key Key, origin Origin) {
	m.Called(key, origin)
}

func (m *MockObserver) ModelFailed(key Key, err error) {
	m.Called(key, err)
}

func (m *MockObserver) HookFinished(key Key, hook Hook, elapsed time.Duration, err error) {
	m.Called(key, hook, elapsed, err)
}

// --- Recording fakes ---

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e == event {
			n++
		}
	}
	return n
}

type recordingModel struct {
	name      string
	rec       *recorder
	createErr error
}

func (m *recordingModel) OnCreate(context.Context, *host.Host) error {
	m.rec.add(m.name + ":create")
	return m.createErr
}

func (m *recordingModel) OnCreateBackground(context.Context, *host.Host) error {
	m.rec.add(m.name + ":background")
	return nil
}

type otherModel struct{}

func (otherModel) OnCreate(context.Context, *host.Host) error           { return nil }
func (otherModel) OnCreateBackground(context.Context, *host.Host) error { return nil }

// --- Helpers ---

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func recordingFactory(name string, rec *recorder) Factory {
	return func() (Model, error) {
		rec.add(name + ":new")
		return &recordingModel{name: name, rec: rec}, nil
	}
}

func newTestRegistry(t *testing.T, catalog *Catalog, opts ...Option) *Registry {
	t.Helper()

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	r := NewRegistry(catalog, opts...)
	t.Cleanup(func() {
		_ = r.Shutdown(context.Background())
	})

	return r
}

func newHost(meta host.StaticMetadata) *host.Host {
	return host.New(host.WithName("test"), host.WithMetadata(meta), host.WithLogger(quietLogger()))
}

// drain waits until every background task queued so far has run.
func drain(t *testing.T, r *Registry) {
	t.Helper()

	done := make(chan struct{})
	require.NoError(t, r.RunOnBackground(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background worker did not drain")
	}
}

func indexOf(events []string, event string) int {
	return slices.Index(events, event)
}

// gatedModel blocks in OnCreate until release is closed.
type gatedModel struct {
	entered  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (m *gatedModel) OnCreate(context.Context, *host.Host) error {
	close(m.entered)
	<-m.release
	m.finished.Store(true)
	return nil
}

func (m *gatedModel) OnCreateBackground(context.Context, *host.Host) error { return nil }

// lookupModel looks up another model from its OnCreate.
type lookupModel struct {
	registry *Registry
	target   Key
	found    Model
	err      error
}

func (m *lookupModel) OnCreate(ctx context.Context, _ *host.Host) error {
	m.found, m.err = m.registry.GetInstance(ctx, m.target)
	return m.err
}

func (m *lookupModel) OnCreateBackground(context.Context, *host.Host) error { return nil }
