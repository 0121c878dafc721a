package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"aegis/pkg/errors"
)

type Config struct {
	App           AppConfig
	AI            AIConfig
	Guardrails    GuardrailsConfig
	Agent         AgentConfig
	Data          DataConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"aegis"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Verbose  bool   `envconfig:"VERBOSE" default:"false"`

	// Address for the Prometheus metrics endpoint; empty disables it
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// AIConfig maps logical model roles to concrete backends.
// Fast and guard run on a local Ollama server; powerful runs on Gemini.
type AIConfig struct {
	GeminiKey     string `envconfig:"GEMINI_API_KEY"`
	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`

	ModelFast     string `envconfig:"MODEL_FAST" default:"gemma2:2b"`
	ModelGuard    string `envconfig:"MODEL_GUARD" default:"llama-guard3:8b"`
	ModelPowerful string `envconfig:"MODEL_POWERFUL" default:"gemini-2.5-flash"`

	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3"`

	// Requests per minute per backend; 0 disables rate limiting
	RateLimitPerMinute int `envconfig:"AI_RATE_LIMIT_PER_MINUTE" default:"60"`
}

type GuardrailsConfig struct {
	// Largest order the guard stage will approve, in shares
	MaxOrderShares int `envconfig:"GUARDRAILS_MAX_ORDER_SHARES" default:"1000"`

	// Per-stage deadline; the whole pipeline is additionally capped by
	// AIConfig.LLMTimeout
	StageTimeout time.Duration `envconfig:"GUARDRAILS_STAGE_TIMEOUT" default:"10s"`
}

type AgentConfig struct {
	// Maximum planning/tool round-trips within a single user turn
	MaxToolRounds int `envconfig:"AGENT_MAX_TOOL_ROUNDS" default:"8"`
}

type DataConfig struct {
	Dir string `envconfig:"DATA_DIR" default:"data"`

	// Ticker whose latest 10-K backs the research tool
	FilingTicker string `envconfig:"FILING_TICKER" default:"NVDA"`

	// Contact identity required by the SEC for EDGAR requests
	EdgarIdentity string `envconfig:"EDGAR_IDENTITY"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

// Validate fails fast on missing credentials for configured roles.
// The powerful role is backed by Gemini, so its key is mandatory.
func (c *Config) Validate() error {
	if c.AI.GeminiKey == "" {
		return errors.Wrap(errors.ErrInvalidInput, "GEMINI_API_KEY is required for the powerful model role")
	}
	if c.AI.MaxRetries < 1 {
		return errors.Wrap(errors.ErrInvalidInput, "MAX_RETRIES must be at least 1")
	}
	if c.Agent.MaxToolRounds < 1 {
		return errors.Wrap(errors.ErrInvalidInput, "AGENT_MAX_TOOL_ROUNDS must be at least 1")
	}
	return nil
}
