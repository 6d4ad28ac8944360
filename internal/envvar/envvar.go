package envvar

const (
	// BeamEnv is the environment variable used to determine the environment
	BeamEnv = "BEAM_ENV"

	// BeamManifestPath overrides the manifest path given on the command line
	BeamManifestPath = "BEAM_MANIFEST_PATH"

	// BeamSchemaPath overrides the manifest schema path
	BeamSchemaPath = "BEAM_SCHEMA_PATH"

	// BeamLogLevel overrides the log level declared in the manifest
	BeamLogLevel = "BEAM_LOG_LEVEL"
)
