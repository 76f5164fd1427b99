package modelclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/voicetutor/config"
)

func TestOllamaProvider_AppliesDefaultBaseURLAndKey(t *testing.T) {
	withCleanRegistry(t)
	Register("ollama", func(cfg config.ProviderConfig) (Provider, error) {
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaBaseURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
		return newOpenAI(cfg)
	})

	p, err := New("ollama", config.ProviderConfig{Model: "llama3.2"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", p.ModelID())
}

func TestOllamaProvider_RegisteredByDefault(t *testing.T) {
	assert.Contains(t, List(), "ollama")
}

func TestCheckModelPulled_NoModelConfiguredIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { checkModelPulled("") })
}

func TestCheckModelPulled_UnreachableDaemonIsNoop(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "127.0.0.1:1")
	assert.NotPanics(t, func() { checkModelPulled("llama3.2") })
}
