package modelclient

import (
	"context"
	"fmt"
	"time"

	ollamaapi "github.com/ollama/ollama/api"

	"github.com/brightclass/voicetutor/config"
	"github.com/brightclass/voicetutor/telemetry"
)

// defaultOllamaBaseURL is Ollama's local OpenAI-compatible endpoint.
const defaultOllamaBaseURL = "http://localhost:11434/v1"

// defaultOllamaProbeTimeout bounds the best-effort local-model list call.
const defaultOllamaProbeTimeout = 2 * time.Second

func init() {
	Register("ollama", func(cfg config.ProviderConfig) (Provider, error) {
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaBaseURL
		}
		if cfg.APIKey == "" {
			// The OpenAI-compatible endpoint requires a non-empty bearer
			// token even though Ollama itself does not check it.
			cfg.APIKey = "ollama"
		}

		checkModelPulled(cfg.Model)

		return newOpenAI(cfg)
	})
}

// checkModelPulled warns at startup if the configured model is not present
// in the local Ollama daemon's model list. Generation itself still goes
// through the OpenAI-compatible chat endpoint (newOpenAI above); the
// native client is only used here, for the one thing the compatibility
// endpoint cannot tell us ahead of the first request. Best-effort: a
// daemon that isn't reachable yet must not block provider construction.
func checkModelPulled(model string) {
	if model == "" {
		return
	}

	client, err := ollamaapi.ClientFromEnvironment()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOllamaProbeTimeout)
	defer cancel()

	resp, err := client.List(ctx)
	if err != nil {
		telemetry.FromContext(ctx).Warn(ctx, "modelclient: ollama: could not list local models", "error", err)
		return
	}

	for _, m := range resp.Models {
		if m.Name == model || m.Model == model {
			return
		}
	}

	telemetry.FromContext(ctx).Warn(ctx, fmt.Sprintf("modelclient: ollama: model %q not found in local daemon, pull it before first use", model))
}
