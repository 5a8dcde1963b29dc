package features

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"CandleSense/internal/domain/models"
)

// Config controls the candle window and the sub-feature horizons.
type Config struct {
	MinCandles       int     `yaml:"min_candles" default:"20" validate:"gte=2"`
	Window           int     `yaml:"window" default:"20" validate:"gtefield=MinCandles"`
	ShortSlope       int     `yaml:"short_slope" default:"5" validate:"gte=2"`
	MediumSlope      int     `yaml:"medium_slope" default:"10" validate:"gte=2"`
	LongSlope        int     `yaml:"long_slope" default:"20" validate:"gte=2"`
	ATRPeriod        int     `yaml:"atr_period" default:"14" validate:"gte=1"`
	SupportLookback  int     `yaml:"support_lookback" default:"50" validate:"gte=2"`
	SupportProximity float64 `yaml:"support_proximity" default:"0.02" validate:"gt=0,lt=1"`
}

// DefaultConfig returns the reference horizons.
func DefaultConfig() Config {
	return Config{
		MinCandles:       20,
		Window:           20,
		ShortSlope:       5,
		MediumSlope:      10,
		LongSlope:        20,
		ATRPeriod:        14,
		SupportLookback:  50,
		SupportProximity: 0.02,
	}
}

func (c Config) Validate() error {
	if c.MinCandles < 2 {
		return fmt.Errorf("features: min_candles must be >= 2, got %d", c.MinCandles)
	}
	if c.Window < c.MinCandles {
		return fmt.Errorf("features: window %d below min_candles %d", c.Window, c.MinCandles)
	}
	if c.LongSlope > c.Window || c.MediumSlope > c.Window || c.ShortSlope > c.Window {
		return fmt.Errorf("features: slope horizons must fit in window %d", c.Window)
	}
	if c.ATRPeriod < 1 || c.ATRPeriod >= c.Window {
		return fmt.Errorf("features: atr_period must be in [1,%d)", c.Window)
	}
	if c.SupportProximity <= 0 || c.SupportProximity >= 1 {
		return fmt.Errorf("features: support_proximity must be in (0,1)")
	}
	return nil
}

// Extractor turns a chronological candle window into a FeatureSet. It holds no state
// beyond its configuration and is safe for concurrent use.
type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg}, nil
}

func (e *Extractor) Config() Config { return e.cfg }

// Extract computes the feature set for the newest Window candles. Fewer than MinCandles
// candles yields models.ErrInsufficientData and no partial result.
func (e *Extractor) Extract(candles []models.Candle) (models.FeatureSet, error) {
	if len(candles) < e.cfg.MinCandles {
		return models.FeatureSet{}, fmt.Errorf("extract features from %d candles: %w", len(candles), models.ErrInsufficientData)
	}

	recent := tail(candles, e.cfg.Window)
	arrays := ArrayFeaturesOf(recent)

	closes := make([]float64, len(recent))
	for i, c := range recent {
		closes[i] = c.Close
	}

	s := models.ScalarFeatures{
		AvgBodyRatio:    mean(arrays.BodyRatios),
		AvgUpperWick:    mean(arrays.UpperWickRatios),
		AvgLowerWick:    mean(arrays.LowerWickRatios),
		ShortTermSlope:  Slope(tailFloats(closes, e.cfg.ShortSlope)),
		MediumTermSlope: Slope(tailFloats(closes, e.cfg.MediumSlope)),
		LongTermSlope:   Slope(tailFloats(closes, e.cfg.LongSlope)),
		// true range needs the previous close, so ATR reads one candle past the window when available
		AverageTrueRange: AverageTrueRange(tail(candles, e.cfg.ATRPeriod+1)),
		VolatilityRatio:  VolatilityRatio(recent),
	}
	s.ConsecutiveBullish, s.ConsecutiveBearish = ConsecutiveRuns(recent)
	s.BullishRatio = bullishRatio(recent)
	s.HigherHighs, s.LowerLows = higherHighsLowerLows(recent)
	if first := closes[0]; first != 0 {
		s.Momentum = (closes[len(closes)-1] - first) / first
	}

	sr := SupportResistance(tail(candles, e.cfg.SupportLookback), e.cfg.SupportProximity)
	s.NearSupport, s.NearResistance = sr.NearSupport, sr.NearResistance
	s.DistToSupport, s.DistToResistance = sr.DistToSupport, sr.DistToResistance

	return models.FeatureSet{Arrays: arrays, Scalars: s}, nil
}

// ArrayFeaturesOf computes the per-candle ratio sequences. A zero-range candle yields zeros.
func ArrayFeaturesOf(candles []models.Candle) models.ArrayFeatures {
	n := len(candles)
	a := models.ArrayFeatures{
		BodyRatios:      make([]float64, n),
		BodyDirections:  make([]float64, n),
		UpperWickRatios: make([]float64, n),
		LowerWickRatios: make([]float64, n),
	}
	for i, c := range candles {
		a.BodyRatios[i] = ratio(c.Body(), c.Range())
		a.UpperWickRatios[i] = ratio(c.UpperWick(), c.Range())
		a.LowerWickRatios[i] = ratio(c.LowerWick(), c.Range())
		switch {
		case c.IsBullish():
			a.BodyDirections[i] = 1
		case c.IsBearish():
			a.BodyDirections[i] = -1
		}
	}
	return a
}

// Slope is the least-squares slope of ys against 0..n-1.
func Slope(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	out := talib.LinearRegSlope(ys, len(ys))
	return out[len(out)-1]
}

// AverageTrueRange is the mean true range over candles[1:]; each bar uses the previous close.
func AverageTrueRange(candles []models.Candle) float64 {
	if len(candles) < 2 {
		if len(candles) == 1 {
			return candles[0].Range()
		}
		return 0
	}
	high := make([]float64, len(candles))
	low := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		high[i], low[i], closes[i] = c.High, c.Low, c.Close
	}
	// TRange leaves index 0 at zero
	tr := talib.TRange(high, low, closes)
	sum := 0.0
	for _, v := range tr[1:] {
		sum += v
	}
	return sum / float64(len(tr)-1)
}

// VolatilityRatio is the newest range over the mean range of the window. A flat window yields 1.
func VolatilityRatio(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Range()
	}
	avg := sum / float64(len(candles))
	if avg == 0 {
		return 1
	}
	return candles[len(candles)-1].Range() / avg
}

// ConsecutiveRuns counts same-direction candles backwards from the newest one. The scan stops
// at the first candle that differs, so at most one of the two counters is non-zero.
func ConsecutiveRuns(candles []models.Candle) (bullish, bearish int) {
	if len(candles) == 0 {
		return 0, 0
	}
	last := candles[len(candles)-1]
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		switch {
		case last.IsBullish() && c.IsBullish():
			bullish++
		case last.IsBearish() && c.IsBearish():
			bearish++
		default:
			return bullish, bearish
		}
	}
	return bullish, bearish
}

// SRLevels is the proximity of the newest close to the lookback extremes.
type SRLevels struct {
	NearSupport      bool
	NearResistance   bool
	DistToSupport    float64
	DistToResistance float64
}

// SupportResistance measures the newest close against the lowest low and highest high of candles.
func SupportResistance(candles []models.Candle, proximity float64) SRLevels {
	var out SRLevels
	if len(candles) == 0 {
		return out
	}
	low, high := candles[0].Low, candles[0].High
	for _, c := range candles[1:] {
		low = math.Min(low, c.Low)
		high = math.Max(high, c.High)
	}
	price := candles[len(candles)-1].Close
	if price <= 0 {
		return out
	}
	out.DistToSupport = (price - low) / price
	out.DistToResistance = (high - price) / price
	out.NearSupport = out.DistToSupport <= proximity
	out.NearResistance = out.DistToResistance <= proximity
	return out
}

func bullishRatio(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	n := 0
	for _, c := range candles {
		if c.IsBullish() {
			n++
		}
	}
	return float64(n) / float64(len(candles))
}

func higherHighsLowerLows(candles []models.Candle) (hh, ll int) {
	for i := 1; i < len(candles); i++ {
		if candles[i].High > candles[i-1].High {
			hh++
		}
		if candles[i].Low < candles[i-1].Low {
			ll++
		}
	}
	return hh, ll
}

func ratio(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func tail(c []models.Candle, n int) []models.Candle {
	if n <= 0 || len(c) <= n {
		return c
	}
	return c[len(c)-n:]
}

func tailFloats(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
