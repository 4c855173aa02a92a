package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nairaflow/connect/internal/classify"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: localhost:6379
  db: 2
classifier:
  strategy: accuracy_first
  cache_strategy: conservative
  cache_ttl_hours: 48
  review_threshold: 0.75
  llm:
    base_url: https://llm.internal/v1
    api_key: sk-live
    models:
      lite: small-model
      premium: big-model
health:
  check_interval_seconds: 15
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 48*time.Hour, cfg.Classifier.CacheTTL())
	assert.Equal(t, 15, cfg.Health.CheckIntervalSeconds)
	assert.Equal(t, 10, cfg.Health.CheckTimeoutSeconds, "default applied")

	strategy, err := cfg.Classifier.OptimizerStrategy()
	require.NoError(t, err)
	assert.Equal(t, classify.StrategyAccuracyFirst, strategy)

	policy, err := cfg.Classifier.CachePolicy()
	require.NoError(t, err)
	assert.Equal(t, classify.CacheConservative, policy)

	models, err := cfg.Classifier.LLM.TierModels()
	require.NoError(t, err)
	assert.Equal(t, "big-model", models[classify.TierPremium])
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `redis: {addr: localhost:6379}`))
	require.NoError(t, err)
	assert.Equal(t, "balanced", cfg.Classifier.Strategy)
	assert.Equal(t, 24*time.Hour, cfg.Classifier.CacheTTL())
	assert.Equal(t, 0.7, cfg.Classifier.ReviewThreshold)
	assert.Equal(t, 10000, cfg.Health.MaxMetrics)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "balanced", cfg.Classifier.Strategy)
	assert.Equal(t, 30, cfg.Health.CheckIntervalSeconds)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
classifier:
  strateggy: balanced
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strateggy")
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
classifier:
  strategy: yolo
`))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `
classifier:
  llm:
    models:
      rule: never-a-model
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule")
}
