package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordPrediction("EURUSD", "ensemble", "UP", 0.72, true)
	r.RecordPrediction("EURUSD", "ensemble", "UP", 0.66, true)
	r.RecordValidation(false)
	r.RecordTraining("trained", 1.5)
	r.SetModelVersion(4)
	r.RecordRiskDenial("cooldown")
	r.RecordCandles("kafka", 30)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.predictions.WithLabelValues("EURUSD", "ensemble", "UP", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.validations.WithLabelValues("false")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.modelVersion))
	assert.Equal(t, 30.0, testutil.ToFloat64(r.candlesStored.WithLabelValues("kafka")))

	n, err := testutil.GatherAndCount(reg, "candlesense_training_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
