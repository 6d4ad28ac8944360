package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/beam/internal/envvar"
	"github.com/ekisa-team/beam/internal/xfs"
)

// ErrManifestNotFound is returned when no manifest exists at the resolved path.
var ErrManifestNotFound = errors.New("manifest not found")

//go:embed manifest.v1.schema.json
var defaultSchema string

const defaultSchemaURL = "https://schemas.ekisa.dev/beam/manifest.v1.schema.json"

// LoadAndValidate loads the manifest at path and validates it against the
// schema at schemaPath, or the embedded schema when schemaPath is empty.
func LoadAndValidate(path, schemaPath string) (*Manifest, error) {
	if !xfs.Exists(path) {
		return nil, fmt.Errorf("%w at %s (set --manifest or %s): %w", ErrManifestNotFound, path, envvar.BeamManifestPath, os.ErrNotExist)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates and decodes a YAML manifest.
func Parse(data []byte, schemaPath string) (*Manifest, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into Manifest struct: %w", err)
	}
	manifest.applyDefaults()

	return &manifest, nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(defaultSchemaURL, strings.NewReader(defaultSchema)); err != nil {
		return nil, err
	}

	return compiler.Compile(defaultSchemaURL)
}
