package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "orchestrator", cfg.AgentType)
	assert.Equal(t, "learning-orchestrator", cfg.Worker.PipelineName)
	assert.Equal(t, "learning-english", cfg.Worker.RealtimeName)
	assert.Equal(t, 3500*time.Millisecond, cfg.Worker.DrainDelay)
	assert.Equal(t, 30*time.Second, cfg.Worker.WatchdogTimeout)
	assert.Equal(t, 3*time.Second, cfg.Worker.RealtimeReplyDelay)
	assert.Equal(t, "openai", cfg.Safety.ModerationProvider)
	assert.NotEmpty(t, cfg.Safety.FallbackSentence)
}

func TestLoad_InvalidAgentType(t *testing.T) {
	t.Setenv("TUTOR_AGENT_TYPE", "bogus")
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoad_InvalidModelProvider(t *testing.T) {
	t.Setenv("TUTOR_MODEL_PROVIDER", "watsonx")
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TUTOR_AGENT_TYPE", "english")
	t.Setenv("TUTOR_WORKER_REALTIME_REPLY_DELAY", "5s")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "english", cfg.AgentType)
	assert.Equal(t, 5*time.Second, cfg.Worker.RealtimeReplyDelay)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "agent_type: english\nsafety:\n  moderation_model: custom-model\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "english", cfg.AgentType)
	assert.Equal(t, "custom-model", cfg.Safety.ModerationModel)
}

func TestLoad_ModelProviderDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.OpenAI.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Model.Ollama.BaseURL)
}
