// Package config loads runtime configuration for the tutor worker binary
// using Viper, merging an optional YAML file with environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for a tutor-worker process. A single
// binary reads this at startup and, based on AgentType, runs either the
// pipeline worker or the realtime worker (see worker package).
type Config struct {
	// AgentType selects the worker role: "orchestrator" or "english".
	AgentType string `mapstructure:"agent_type" validate:"oneof=orchestrator english"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json text"` // "json" or "text"
	Env       string `mapstructure:"env"`                                  // "development" or "production"

	Worker struct {
		PipelineName        string        `mapstructure:"pipeline_name"`
		RealtimeName        string        `mapstructure:"realtime_name"`
		DrainDelay          time.Duration `mapstructure:"drain_delay"`
		WatchdogTimeout     time.Duration `mapstructure:"watchdog_timeout"`
		RealtimeReplyDelay  time.Duration `mapstructure:"realtime_reply_delay"`
	} `mapstructure:"worker"`

	Safety struct {
		APIKey             string        `mapstructure:"api_key"`
		ModerationProvider string        `mapstructure:"moderation_provider"`
		ModerationModel    string        `mapstructure:"moderation_model"`
		ModerationTimeout  time.Duration `mapstructure:"moderation_timeout"`
		RewriteModel       string        `mapstructure:"rewrite_model"`
		RewriteTimeout     time.Duration `mapstructure:"rewrite_timeout"`
		FallbackSentence   string        `mapstructure:"fallback_sentence"`
	} `mapstructure:"safety"`

	Model struct {
		Provider  string         `mapstructure:"provider" validate:"oneof=openai anthropic bedrock ollama"`
		OpenAI    ProviderConfig `mapstructure:"openai"`
		Anthropic ProviderConfig `mapstructure:"anthropic"`
		Bedrock   ProviderConfig `mapstructure:"bedrock"`
		Ollama    ProviderConfig `mapstructure:"ollama"`
	} `mapstructure:"model"`

	Transport struct {
		ControlServiceURL string `mapstructure:"control_service_url"`
		APIKey            string `mapstructure:"api_key"`
		APISecret         string `mapstructure:"api_secret"`
	} `mapstructure:"transport"`

	Store struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Escalation struct {
		StoreURL string `mapstructure:"store_url"`
		APIKey   string `mapstructure:"api_key"`
	} `mapstructure:"escalation"`

	Telemetry struct {
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
		ServiceName  string `mapstructure:"service_name"`
		MetricsAddr  string `mapstructure:"metrics_addr"`
	} `mapstructure:"telemetry"`
}

// EnvPrefix is the Viper environment variable prefix for this service, e.g.
// TUTOR_WORKER_DRAIN_DELAY overrides Worker.DrainDelay.
const EnvPrefix = "TUTOR"

// Load reads configuration from an optional YAML file and environment
// variables. configPaths are additional directories to search for a
// "config.yaml" file, checked after the built-in search paths.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("agent_type", "orchestrator")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("env", "production")

	v.SetDefault("worker.pipeline_name", "learning-orchestrator")
	v.SetDefault("worker.realtime_name", "learning-english")
	v.SetDefault("worker.drain_delay", 3500*time.Millisecond)
	v.SetDefault("worker.watchdog_timeout", 30*time.Second)
	v.SetDefault("worker.realtime_reply_delay", 3*time.Second)

	v.SetDefault("safety.moderation_provider", "openai")
	v.SetDefault("safety.moderation_model", "omni-moderation-latest")
	v.SetDefault("safety.moderation_timeout", 5*time.Second)
	v.SetDefault("safety.rewrite_model", "gpt-4o-mini")
	v.SetDefault("safety.rewrite_timeout", 8*time.Second)
	v.SetDefault("safety.fallback_sentence",
		"I can't say that the way it was phrased, so let's try a different question.")

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.openai.model", "gpt-4o-mini")
	v.SetDefault("model.anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("model.anthropic.options", map[string]any{"version": "2023-06-01"})
	v.SetDefault("model.bedrock.model", "anthropic.claude-3-5-haiku-20241022-v1:0")
	v.SetDefault("model.bedrock.options", map[string]any{"region": "us-east-1"})
	v.SetDefault("model.ollama.base_url", "http://localhost:11434")
	v.SetDefault("model.ollama.model", "llama3")

	v.SetDefault("telemetry.otlp_endpoint", "https://otel.example.internal/api/public/otel/v1/traces")
	v.SetDefault("telemetry.service_name", "tutor-worker")
	v.SetDefault("telemetry.metrics_addr", ":9464")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tutor-runtime/")
	v.AddConfigPath("$HOME/.tutor-runtime")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode into struct: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// validate is the process-wide struct validator, safe for concurrent use
// per the library's own documentation.
var validate = validator.New()
