package models

// ArrayFeatures are ordered per-candle sequences over the feature window, oldest first.
type ArrayFeatures struct {
	BodyRatios      []float64 `json:"body_ratios"`
	BodyDirections  []float64 `json:"body_directions"`
	UpperWickRatios []float64 `json:"upper_wick_ratios"`
	LowerWickRatios []float64 `json:"lower_wick_ratios"`
}

// ScalarFeatures summarise the window as single values.
type ScalarFeatures struct {
	AvgBodyRatio       float64 `json:"avg_body_ratio"`
	AvgUpperWick       float64 `json:"avg_upper_wick"`
	AvgLowerWick       float64 `json:"avg_lower_wick"`
	ShortTermSlope     float64 `json:"short_term_slope"`
	MediumTermSlope    float64 `json:"medium_term_slope"`
	LongTermSlope      float64 `json:"long_term_slope"`
	AverageTrueRange   float64 `json:"atr"`
	VolatilityRatio    float64 `json:"volatility_ratio"`
	ConsecutiveBullish int     `json:"consecutive_bullish"`
	ConsecutiveBearish int     `json:"consecutive_bearish"`
	BullishRatio       float64 `json:"bullish_ratio"`
	NearSupport        bool    `json:"near_support"`
	NearResistance     bool    `json:"near_resistance"`
	DistToSupport      float64 `json:"dist_to_support"`
	DistToResistance   float64 `json:"dist_to_resistance"`
	HigherHighs        int     `json:"higher_highs"`
	LowerLows          int     `json:"lower_lows"`
	Momentum           float64 `json:"momentum"`
}

// FeatureSet is derived once per prediction cycle and never mutated afterwards.
type FeatureSet struct {
	Arrays   ArrayFeatures  `json:"arrays"`
	Scalars  ScalarFeatures `json:"scalars"`
	Patterns []string       `json:"patterns"`
}

// WithPatterns returns a copy of fs carrying the given pattern tags.
func (fs FeatureSet) WithPatterns(tags []string) FeatureSet {
	out := fs
	out.Patterns = append([]string(nil), tags...)
	return out
}

// IsZero reports whether fs carries no per-candle data.
func (fs FeatureSet) IsZero() bool {
	return len(fs.Arrays.BodyRatios) == 0 && len(fs.Arrays.BodyDirections) == 0
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ScalarValues exposes the scalars by their wire name in a fixed order.
func (s ScalarFeatures) ScalarValues() []NamedValue {
	return []NamedValue{
		{"avg_body_ratio", s.AvgBodyRatio},
		{"avg_upper_wick", s.AvgUpperWick},
		{"avg_lower_wick", s.AvgLowerWick},
		{"short_term_slope", s.ShortTermSlope},
		{"medium_term_slope", s.MediumTermSlope},
		{"long_term_slope", s.LongTermSlope},
		{"atr", s.AverageTrueRange},
		{"volatility_ratio", s.VolatilityRatio},
		{"consecutive_bullish", float64(s.ConsecutiveBullish)},
		{"consecutive_bearish", float64(s.ConsecutiveBearish)},
		{"bullish_ratio", s.BullishRatio},
		{"near_support", boolToFloat(s.NearSupport)},
		{"near_resistance", boolToFloat(s.NearResistance)},
		{"dist_to_support", s.DistToSupport},
		{"dist_to_resistance", s.DistToResistance},
		{"higher_highs", float64(s.HigherHighs)},
		{"lower_lows", float64(s.LowerLows)},
		{"momentum", s.Momentum},
	}
}

// NamedValue pairs a feature name with its value.
type NamedValue struct {
	Name  string
	Value float64
}
