package core

// Environment Variables
const (
	// EnvModelsDir overrides the default "./models" download directory.
	EnvModelsDir = "KOLOSAL_MODELS_DIR"

	// EnvPort names a PORT variable. Nothing reads it: Config.LoadFromEnv
	// takes the HTTP server port from KOLOSAL_PORT.
	EnvPort = "PORT"

	// EnvDevMode flips on verbose request logging.
	EnvDevMode = "DEV_MODE"

	// EnvConfigPath points AgentManager at its agents/functions YAML config.
	EnvConfigPath = "KOLOSAL_AGENTS_CONFIG"
)
