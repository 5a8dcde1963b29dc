package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
)

var now = time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

func newGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(DefaultConfig())
	require.NoError(t, err)
	return g
}

func TestEvaluateAllowsCleanState(t *testing.T) {
	d := newGate(t).Evaluate(0.8, models.TradeStats{}, now)
	assert.True(t, d.Allowed)
	require.Len(t, d.Checks, 5)
	assert.Empty(t, d.Failed())
}

func TestEvaluateReportsEveryCheck(t *testing.T) {
	st := models.TradeStats{
		TradesToday:       20,
		ConsecutiveLosses: 3,
		RecentWinRate:     0.4,
		RecentSamples:     50,
		LastLossAt:        now.Add(-2 * time.Minute),
	}
	d := newGate(t).Evaluate(0.5, st, now)

	assert.False(t, d.Allowed)
	assert.Equal(t, []string{CheckDailyTrades, CheckConsecutiveLosses, CheckConfidence, CheckWinRate, CheckCooldown}, d.Failed())
	for _, c := range d.Checks {
		assert.NotEmpty(t, c.Reason, c.Name)
	}
}

func TestEvaluateSingleChecks(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		stats      models.TradeStats
		failed     []string
	}{
		{"below daily limit", 0.7, models.TradeStats{TradesToday: 19}, nil},
		{"streak below limit", 0.7, models.TradeStats{ConsecutiveLosses: 2}, nil},
		{"confidence at minimum", 0.65, models.TradeStats{}, nil},
		{"confidence below minimum", 0.64, models.TradeStats{}, []string{CheckConfidence}},
		{"low win rate ignored with few samples", 0.7, models.TradeStats{RecentWinRate: 0.1, RecentSamples: 49}, nil},
		{"low win rate with enough samples", 0.7, models.TradeStats{RecentWinRate: 0.49, RecentSamples: 50}, []string{CheckWinRate}},
		{"cooldown elapsed", 0.7, models.TradeStats{LastLossAt: now.Add(-5 * time.Minute)}, nil},
		{"inside cooldown", 0.7, models.TradeStats{LastLossAt: now.Add(-4 * time.Minute)}, []string{CheckCooldown}},
	}
	g := newGate(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Evaluate(tt.confidence, tt.stats, now)
			assert.Equal(t, tt.failed, d.Failed())
			assert.Equal(t, len(tt.failed) == 0, d.Allowed)
			assert.Len(t, d.Checks, 5)
		})
	}
}

func TestNewGateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 1.5
	_, err := NewGate(cfg)
	assert.Error(t, err)
}
