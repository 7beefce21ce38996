package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/hupe1980/agencykit/core"
)

// Env holds process-level settings read from the environment. Provider keys
// are optional here because a process may wire only one backend; the provider
// constructors fail on their own when the key they need is missing.
type Env struct {
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`

	LogLevel string `envconfig:"AGENCY_LOG_LEVEL" default:"info"`

	MaxTurns         int           `envconfig:"AGENCY_MAX_TURNS" default:"20"`
	RunTimeout       time.Duration `envconfig:"AGENCY_RUN_TIMEOUT" default:"10m"`
	ToolTimeout      time.Duration `envconfig:"AGENCY_TOOL_TIMEOUT" default:"60s"`
	MaxParallelTools int           `envconfig:"AGENCY_MAX_PARALLEL_TOOLS" default:"4"`

	// ResourceRetryInterval bounds how often a failed resource factory is
	// re-attempted; inside the window callers see the cached error.
	ResourceRetryInterval time.Duration `envconfig:"AGENCY_RESOURCE_RETRY_INTERVAL" default:"5s"`
}

// LoadEnv reads Env from the process environment. A .env file is loaded
// first when present so local development does not need exported variables.
func LoadEnv() (*Env, error) {
	// Ignore the error: a missing .env file is the normal production case.
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, core.NewConfigError("process environment: %v", err)
	}
	if env.MaxTurns <= 0 {
		return nil, core.NewConfigError("AGENCY_MAX_TURNS must be positive, got %d", env.MaxTurns)
	}
	if env.MaxParallelTools <= 0 {
		return nil, core.NewConfigError("AGENCY_MAX_PARALLEL_TOOLS must be positive, got %d", env.MaxParallelTools)
	}
	return &env, nil
}
