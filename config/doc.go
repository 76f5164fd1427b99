// Package config loads tutor-worker configuration from an optional YAML
// file and environment variables, using Viper.
//
// # Loading
//
// [Load] reads "config.yaml" from the current directory, /etc/tutor-runtime/,
// $HOME/.tutor-runtime, and any paths passed explicitly, then overlays
// environment variables prefixed TUTOR_ (see [EnvPrefix]). A missing config
// file is not an error; defaults and the environment still apply.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// AGENT_TYPE in spec terms is TUTOR_AGENT_TYPE here, selecting "orchestrator"
// or "english" (see the worker package).
//
// # Provider configuration
//
// [ProviderConfig] holds the settings for a single pluggable model backend
// (provider name, API key, model, base URL, timeout, and a free-form Options
// map for backend-specific settings). The four backends under Config.Model
// (OpenAI, Anthropic, Bedrock, Ollama) are all ProviderConfig values.
// [GetOption] retrieves a typed value from the Options map:
//
//	region, ok := config.GetOption[string](cfg.Model.Bedrock, "region")
package config
