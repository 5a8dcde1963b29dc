package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/services/validation"
	"CandleSense/internal/usecase"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "environment: test\n" +
		"metrics:\n  enabled: false\n" +
		"logging:\n  level: error\n" +
		"storage:\n  model_path: " + filepath.Join(dir, "model.json") + "\n" +
		"redis:\n  password: hunter2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatsAndValidate(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "stats", "--config", path)
	require.NoError(t, err, out)
	var st usecase.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Zero(t, st.TotalCandles)

	out, err = run(t, "validate", "-c", path)
	require.NoError(t, err, out)
	var sum validation.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Zero(t, sum.Scanned)
}

func TestPredictNeedsCandles(t *testing.T) {
	path := writeConfig(t)
	_, err := run(t, "predict", "--symbol", "EURUSD", "-c", path)
	assert.Error(t, err)

	_, err = run(t, "predict", "-c", path)
	assert.Error(t, err)
}

func TestPerformanceDaysBounds(t *testing.T) {
	path := writeConfig(t)
	_, err := run(t, "performance", "--days", "0", "-c", path)
	assert.Error(t, err)
}

func TestConfigRedactsSecrets(t *testing.T) {
	path := writeConfig(t)
	out, err := run(t, "config", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "environment: test")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "***")
}

func TestAtFlag(t *testing.T) {
	path := writeConfig(t)
	_, err := run(t, "stats", "--at", "soon", "-c", path)
	assert.Error(t, err)

	out, err := run(t, "retention", "--at", "2024-10-01T00:00:00Z", "-c", path)
	require.NoError(t, err, out)
	var rep usecase.RetentionReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "2024-07-03T00:00:00Z", rep.Cutoff.Format(time.RFC3339))
}
