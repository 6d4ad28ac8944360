package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/beam/host"
	"github.com/ekisa-team/beam/internal/config"
	"github.com/ekisa-team/beam/internal/envvar"
	"github.com/ekisa-team/beam/model"
)

type countingModel struct {
	created    *atomic.Int32
	background *atomic.Int32
}

func (m *countingModel) OnCreate(context.Context, *host.Host) error {
	m.created.Add(1)
	return nil
}

func (m *countingModel) OnCreateBackground(context.Context, *host.Host) error {
	m.background.Add(1)
	return nil
}

type counters struct {
	created    atomic.Int32
	background atomic.Int32
}

func testCatalog(t *testing.T, c *counters, keys ...model.Key) *model.Catalog {
	t.Helper()

	catalog := model.NewCatalog()
	for _, key := range keys {
		require.NoError(t, catalog.Register(key, func() (model.Model, error) {
			return &countingModel{created: &c.created, background: &c.background}, nil
		}))
	}

	return catalog
}

func testManifest(t *testing.T, doc string) *config.Manifest {
	t.Helper()

	m, err := config.Parse([]byte(doc), "")
	require.NoError(t, err)
	return m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func startApp(t *testing.T, a *App) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("app stopped before ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("app did not become ready")
	}

	return cancel, done
}

func TestApp_RunInitializesAndShutsDown(t *testing.T) {
	var c counters
	catalog := testCatalog(t, &c, "com.x.A", "com.x.B", "com.x.C")
	manifest := testManifest(t, `
version: "1"
application: {name: demo, version: 0.0.1}
metadata:
  MODEL: com.x.A, com.x.Missing, com.x.B
`)

	a := New(manifest, catalog, quietLogger())
	cancel, done := startApp(t, a)

	assert.Equal(t, []model.Key{"com.x.A", "com.x.B"}, a.Registry().Keys())
	assert.Equal(t, "demo", a.Registry().Host().Name)

	lazy, err := a.Registry().GetInstance(context.Background(), "com.x.C")
	require.NoError(t, err)
	assert.NotNil(t, lazy)

	rec := httptest.NewRecorder()
	a.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `beam_models_created_total{origin="eager"} 2`)
	assert.Contains(t, body, `beam_models_created_total{origin="lazy"} 1`)
	assert.Contains(t, body, `beam_model_failures_total{reason="unknown_model"} 1`)
	assert.Contains(t, body, "beam_background_pending")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}

	assert.Equal(t, int32(3), c.created.Load())
	assert.Equal(t, int32(3), c.background.Load())
}

func TestApp_ReloadCreatesNewlyListedModels(t *testing.T) {
	var c counters
	catalog := testCatalog(t, &c, "com.x.A", "com.x.B")
	manifest := testManifest(t, "version: \"1\"\napplication: {name: demo}\nmetadata:\n  MODEL: com.x.A\n")

	a := New(manifest, catalog, quietLogger())
	cancel, done := startApp(t, a)
	defer func() {
		cancel()
		<-done
	}()

	updated := testManifest(t, "version: \"1\"\napplication: {name: demo}\nmetadata:\n  MODEL: com.x.B\n")
	a.Reload(context.Background(), updated)

	// Models dropped from the list stay cached.
	assert.Equal(t, []model.Key{"com.x.A", "com.x.B"}, a.Registry().Keys())
}

type failingMetadata struct{}

func (failingMetadata) Lookup(string) (string, bool, error) {
	return "", false, errors.New("metadata store offline")
}

func TestApp_InitFailureStopsWorker(t *testing.T) {
	manifest := testManifest(t, "version: \"1\"\napplication: {name: demo}\n")

	a := New(manifest, model.NewCatalog(), quietLogger())
	a.host = host.New(host.WithMetadata(failingMetadata{}), host.WithLogger(quietLogger()))

	err := a.Run(context.Background())
	require.ErrorContains(t, err, "metadata store offline")

	assert.ErrorIs(t, a.Registry().RunOnBackground(func(context.Context) {}), model.ErrRegistryClosed)

	select {
	case <-a.Ready():
		t.Fatal("app reported ready after a failed init")
	default:
	}
}

func TestApp_ServesEndpoints(t *testing.T) {
	manifest := testManifest(t, `
version: "1"
application: {name: demo}
metrics: {address: "127.0.0.1:0"}
health: {address: "127.0.0.1:0"}
`)

	a := New(manifest, model.NewCatalog(), quietLogger())
	cancel, done := startApp(t, a)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestApp_EndpointFailureStopsRun(t *testing.T) {
	manifest := testManifest(t, `
version: "1"
application: {name: demo}
metrics: {address: "256.0.0.1:bad"}
`)

	a := New(manifest, model.NewCatalog(), quietLogger())

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "listen on")
	case <-time.After(5 * time.Second):
		t.Fatal("endpoint failure did not stop the app")
	}
}

func TestCommand_ModelsAndVersion(t *testing.T) {
	t.Setenv(envvar.BeamManifestPath, "")
	t.Setenv(envvar.BeamSchemaPath, "")

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\napplication: {name: demo}\nmetadata:\n  MODEL: com.x.A, com.x.Missing\n"), 0o644))

	var c counters
	catalog := testCatalog(t, &c, "com.x.A")

	var out bytes.Buffer
	cmd := Command("beam", catalog)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models", "--manifest", path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "MODEL")
	assert.Regexp(t, `com\.x\.A\s+registered`, out.String())
	assert.Regexp(t, `com\.x\.Missing\s+missing`, out.String())
	assert.Equal(t, int32(0), c.created.Load())

	out.Reset()
	cmd = Command("beam", catalog)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "beam version "+Version+"\n", out.String())
}

func TestCommand_RunUntilCancelled(t *testing.T) {
	t.Setenv(envvar.BeamManifestPath, "")
	t.Setenv(envvar.BeamSchemaPath, "")
	t.Setenv(envvar.BeamLogLevel, "error")

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\napplication: {name: demo}\nmetadata:\n  MODEL: com.x.A\n"), 0o644))

	var c counters
	catalog := testCatalog(t, &c, "com.x.A")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var stderr bytes.Buffer
	cmd := Command("beam", catalog)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"run", "--manifest", path, "--watch"})
	require.NoError(t, cmd.ExecuteContext(ctx))

	assert.Equal(t, int32(1), c.created.Load())
	assert.Equal(t, int32(1), c.background.Load())
}

func TestCommand_RunInvalidManifest(t *testing.T) {
	t.Setenv(envvar.BeamManifestPath, "")

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\n"), 0o644))

	cmd := Command("beam", model.NewCatalog())
	cmd.SetArgs([]string{"run", "--manifest", path})
	assert.ErrorContains(t, cmd.Execute(), "validation failed")
}
