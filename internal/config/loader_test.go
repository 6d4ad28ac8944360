package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/beam/model"
)

const validManifest = `
version: "1"
application:
  name: demo
  version: 1.4.0
  environment: staging
metadata:
  MODEL: "com.x.A, com.x.B"
  CHANNEL: beta
background:
  drain_timeout: 2s
log:
  level: debug
  file: logs/demo.log
  max_size_mb: 10
metrics:
  address: ":9464"
health:
  address: ":9465"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeFile(t, "manifest.yaml", validManifest)

	m, err := LoadAndValidate(path, "")
	require.NoError(t, err)

	assert.Equal(t, "1", m.Version)
	assert.Equal(t, "demo", m.Application.Name)
	assert.Equal(t, "1.4.0", m.Application.Version)
	assert.Equal(t, "staging", m.Application.Environment)
	assert.Equal(t, 2*time.Second, m.Background.DrainTimeout)
	assert.Equal(t, "debug", m.Log.Level)
	assert.Equal(t, 10, m.Log.MaxSizeMB)
	assert.Equal(t, ":9464", m.Metrics.Address)
	assert.Equal(t, ":9465", m.Health.Address)

	assert.Equal(t, []model.Key{"com.x.A", "com.x.B"}, m.Models())

	v, ok, err := m.Lookup("CHANNEL")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "beta", v)

	_, ok, err = m.Lookup("MISSING")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParse_AppliesDefaults(t *testing.T) {
	m, err := Parse([]byte("version: \"1\"\napplication:\n  name: bare\n"), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultDrainTimeout, m.Background.DrainTimeout)
	assert.Equal(t, DefaultLogLevel, m.Log.Level)
	assert.Empty(t, m.Models())
	assert.Empty(t, m.Metrics.Address)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"invalid yaml", "version: [", "invalid YAML"},
		{"empty document", "", "validation failed"},
		{"missing application", "version: \"1\"\n", "validation failed"},
		{"unsupported version", "version: \"2\"\napplication: {name: x}\n", "validation failed"},
		{"non-string metadata", "version: \"1\"\napplication: {name: x}\nmetadata:\n  RETRIES: 3\n", "validation failed"},
		{"bad log level", "version: \"1\"\napplication: {name: x}\nlog: {level: loud}\n", "validation failed"},
		{"bad drain timeout", "version: \"1\"\napplication: {name: x}\nbackground: {drain_timeout: soon}\n", "validation failed"},
		{"unknown field", "version: \"1\"\napplication: {name: x}\nplugins: []\n", "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadAndValidate_CustomSchema(t *testing.T) {
	schema := writeFile(t, "schema.json", `{
  "type": "object",
  "required": ["version", "application", "metadata"]
}`)

	withMeta := writeFile(t, "ok.yaml", validManifest)
	_, err := LoadAndValidate(withMeta, schema)
	require.NoError(t, err)

	withoutMeta := writeFile(t, "bad.yaml", "version: \"1\"\napplication: {name: x}\n")
	_, err = LoadAndValidate(withoutMeta, schema)
	assert.ErrorContains(t, err, "validation failed")
}

func TestLoadAndValidate_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := LoadAndValidate(path, "")
	assert.ErrorIs(t, err, ErrManifestNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorContains(t, err, path)
}
