package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
)

func candle(o, h, l, c float64) models.Candle {
	return models.Candle{Open: o, High: h, Low: l, Close: c}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)
	return d
}

func TestHammerReferenceCandle(t *testing.T) {
	d := newTestDetector(t)
	c := candle(100, 101.05, 95, 101)

	assert.InDelta(t, 5/6.05, c.LowerWick()/c.Range(), 1e-9)
	assert.Contains(t, d.Detect([]models.Candle{c}), Hammer)
}

func TestZeroRangeCandleMatchesNothing(t *testing.T) {
	d := newTestDetector(t)
	flat := candle(100, 100, 100, 100)

	assert.Empty(t, d.Detect([]models.Candle{flat}))
	assert.Empty(t, d.Detect([]models.Candle{flat, flat, flat}))
}

func TestDetectTable(t *testing.T) {
	cases := []struct {
		name    string
		candles []models.Candle
		want    Tag
	}{
		{"doji", []models.Candle{candle(100, 102, 98, 100.1)}, Doji},
		{"dragonfly", []models.Candle{candle(100, 100.05, 95, 100)}, DragonflyDoji},
		{"gravestone", []models.Candle{candle(100, 105, 99.98, 100)}, GravestoneDoji},
		{"bullish engulfing", []models.Candle{candle(101, 101.5, 99.5, 100), candle(99.8, 102, 99.5, 101.5)}, BullishEngulfing},
		{"bearish engulfing", []models.Candle{candle(100, 101.5, 99.5, 101), candle(101.2, 101.5, 99, 99.5)}, BearishEngulfing},
		{"bullish harami", []models.Candle{candle(104, 104.5, 99.5, 100), candle(101, 103, 100.5, 102)}, BullishHarami},
		{"bearish harami", []models.Candle{candle(100, 104.5, 99.5, 104), candle(103, 103.5, 100.5, 101)}, BearishHarami},
		{"piercing", []models.Candle{candle(104, 104.5, 99.5, 100), candle(99.5, 103.5, 99, 103)}, PiercingPattern},
		{"dark cloud", []models.Candle{candle(100, 104.5, 99.5, 104), candle(104.5, 105, 100.5, 101)}, DarkCloudCover},
		{"shooting star", []models.Candle{candle(99, 100.5, 98.5, 100), candle(100, 105, 99.9, 100.8)}, ShootingStar},
		{"inverted hammer", []models.Candle{candle(101, 101.5, 99.5, 100), candle(100, 105, 99.9, 100.8)}, InvertedHammer},
		{"tweezer bottom", []models.Candle{candle(101, 101.5, 99, 100), candle(100, 101.8, 99, 101.5)}, TweezerBottom},
		{"tweezer top", []models.Candle{candle(100, 102, 99.5, 101.5), candle(101.5, 102, 100, 100.5)}, TweezerTop},
		{"morning star", []models.Candle{candle(105, 105.5, 99.5, 100), candle(100, 100.8, 99, 100.5), candle(100.5, 104.5, 100, 104)}, MorningStar},
		{"evening star", []models.Candle{candle(100, 105.5, 99.5, 105), candle(105, 106, 104.5, 105.3), candle(105.3, 105.5, 100.5, 101)}, EveningStar},
		{"three white soldiers", []models.Candle{candle(100, 101.2, 99.8, 101), candle(101, 102.2, 100.8, 102), candle(102, 103.2, 101.8, 103)}, ThreeWhiteSoldiers},
		{"three black crows", []models.Candle{candle(103, 103.2, 101.8, 102), candle(102, 102.2, 100.8, 101), candle(101, 101.2, 99.8, 100)}, ThreeBlackCrows},
	}
	d := newTestDetector(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, d.Detect(tc.candles), tc.want)
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := newTestDetector(t)
	cs := []models.Candle{candle(105, 105.5, 99.5, 100), candle(100, 100.8, 99, 100.5), candle(100.5, 104.5, 100, 104)}

	first := d.Detect(cs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, d.Detect(cs))
	}
}

func TestDisabledRuleNeverFires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hammer.Enabled = false
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	assert.NotContains(t, d.Detect([]models.Candle{candle(100, 101.05, 95, 101)}), Hammer)
}

func TestStrongCounts(t *testing.T) {
	bull, bear := StrongCounts([]string{"hammer", "doji", "bullish_engulfing", "shooting_star", "bullish_harami"})
	assert.Equal(t, 2, bull)
	assert.Equal(t, 1, bear)
	assert.Equal(t, Neutral, BiasOf(Tag("unknown")))
	assert.Equal(t, "bearish", BiasOf(TweezerTop).String())
}
