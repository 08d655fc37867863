package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Gateway.Host)
	assert.Equal(t, 8200, cfg.Gateway.Port)
	assert.Equal(t, AuthNone, cfg.Gateway.Authentication.Scheme)
	assert.Equal(t, "http://localhost:5000", cfg.Gateway.AgentConnection.BaseURL)
	assert.Equal(t, 1, cfg.Gateway.TaskQueue.MaxConcurrent)
	assert.Equal(t, 10, cfg.Gateway.TaskQueue.MaxQueued)
	assert.Equal(t, 10*time.Minute, cfg.Gateway.TaskTimeout())
	assert.Equal(t, 2*time.Second, cfg.Gateway.PollInterval())
	assert.Equal(t, "Aegis Agent", cfg.Gateway.AgentName)

	assert.Equal(t, 8, cfg.Memory.MaxInjectedMemories)
	assert.InDelta(t, 0.90, cfg.Memory.Deduplication.SimilarityThreshold, 1e-9)
	assert.Contains(t, cfg.Memory.LoadBearingKeywords, "never")

	assert.InDelta(t, 0.85, cfg.Ontology.EntityResolution.MergeThreshold, 1e-9)
	assert.InDelta(t, 0.35, cfg.Ontology.EntityResolution.ScoringWeights["name"], 1e-9)
	assert.Equal(t, 30, cfg.Ontology.RelationshipExtraction.TemporalWindowDays)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aegis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  port: 9000
  authentication:
    scheme: api-key
    api_key: sesame
  task_queue:
    max_queued: 3
memory:
  max_injected_memories: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, AuthAPIKey, cfg.Gateway.Authentication.Scheme)
	assert.Equal(t, "sesame", cfg.Gateway.Authentication.APIKey)
	assert.Equal(t, 3, cfg.Gateway.TaskQueue.MaxQueued)
	assert.Equal(t, 4, cfg.Memory.MaxInjectedMemories)

	assert.Equal(t, "0.0.0.0", cfg.Gateway.Host, "untouched keys keep their defaults")
	assert.Equal(t, 1, cfg.Gateway.TaskQueue.MaxConcurrent)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AEGIS_GATEWAY_PORT", "8443")
	t.Setenv("AEGIS_GATEWAY_AGENT_NAME", "Shielded Agent")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8443, cfg.Gateway.Port)
	assert.Equal(t, "Shielded Agent", cfg.Gateway.AgentName)
}
