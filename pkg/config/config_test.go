package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, BackendMemory, c.Storage.Backend)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, 9000, c.ClickHouse.Port)
	assert.Equal(t, 0.65, c.Engine.Ensemble.MinConfidence)
	assert.Equal(t, 50, c.Engine.Training.Threshold)
	assert.True(t, c.Engine.Retention.Enabled)
	assert.Equal(t, 11*time.Minute, c.LearningLockTTL())
}

func TestParseOverlaysDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
server:
  port: 9090
  cors: false
logging:
  level: debug
  format: console
engine:
  ensemble:
    min_confidence: 0.7
  retention:
    enabled: false
`))
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.False(t, c.Server.CORS)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "console", c.Logging.Format)
	assert.Equal(t, 0.7, c.Engine.Ensemble.MinConfidence)
	assert.False(t, c.Engine.Retention.Enabled)

	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, 0.5, c.Engine.Ensemble.ManipulationFactor)
	assert.Equal(t, []int{128, 64, 32}, c.Engine.Model.Hidden)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":      "storage:\n  backend: postgres\n",
		"model store":  "storage:\n  model_store: clickhouse\n",
		"kafka":        "kafka:\n  enabled: true\n",
		"collector":    "logging:\n  collector:\n    enabled: true\n",
		"window":       "engine:\n  prediction:\n    window: 5\n",
		"log level":    "logging:\n  level: loud\n",
		"feed symbols": "feed:\n  enabled: true\n  url: wss://feed.example.com\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("STORAGE_BACKEND", "ClickHouse")
	t.Setenv("CLICKHOUSE_HOST", "ch")
	t.Setenv("LOG_LEVEL", "WARN")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, BackendClickHouse, c.Storage.Backend)
	assert.Equal(t, "ch", c.ClickHouse.Host)
	assert.Equal(t, "warn", c.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
