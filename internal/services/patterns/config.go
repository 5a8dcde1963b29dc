package patterns

import "fmt"

// Toggle is a rule with no numeric thresholds.
type Toggle struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// ShadowRule describes a small body with one long and one short wick, measured against the body.
type ShadowRule struct {
	Enabled         bool    `yaml:"enabled" default:"true"`
	LongWickToBody  float64 `yaml:"long_wick_to_body" default:"2" validate:"gt=0"`
	ShortWickToBody float64 `yaml:"short_wick_to_body" default:"0.3" validate:"gte=0"`
	MaxBodyToRange  float64 `yaml:"max_body_to_range" default:"0.3" validate:"gt=0,lte=1"`
}

// DojiRule bounds the body relative to the range; the wick bounds only apply to the
// dragonfly and gravestone variants.
type DojiRule struct {
	Enabled        bool    `yaml:"enabled" default:"true"`
	MaxBodyToRange float64 `yaml:"max_body_to_range" default:"0.1" validate:"gt=0,lte=1"`
	MinLongWick    float64 `yaml:"min_long_wick" default:"0.6" validate:"gte=0,lte=1"`
	MaxShortWick   float64 `yaml:"max_short_wick" default:"0.1" validate:"gte=0,lte=1"`
}

// StarRule bounds the middle candle body against the first candle body.
type StarRule struct {
	Enabled       bool    `yaml:"enabled" default:"true"`
	MaxMiddleBody float64 `yaml:"max_middle_body" default:"0.5" validate:"gt=0,lte=1"`
}

// PenetrationRule requires the second candle to close past a fraction of the first body.
type PenetrationRule struct {
	Enabled        bool    `yaml:"enabled" default:"true"`
	MinPenetration float64 `yaml:"min_penetration" default:"0.5" validate:"gt=0,lt=1"`
}

// TweezerRule matches extremes within Tolerance, a fraction of price.
type TweezerRule struct {
	Enabled   bool    `yaml:"enabled" default:"true"`
	Tolerance float64 `yaml:"tolerance" default:"0.001" validate:"gte=0,lt=1"`
}

type Config struct {
	Hammer             ShadowRule      `yaml:"hammer"`
	InvertedHammer     ShadowRule      `yaml:"inverted_hammer"`
	Doji               DojiRule        `yaml:"doji"`
	BullishEngulfing   Toggle          `yaml:"bullish_engulfing"`
	BearishEngulfing   Toggle          `yaml:"bearish_engulfing"`
	BullishHarami      Toggle          `yaml:"bullish_harami"`
	BearishHarami      Toggle          `yaml:"bearish_harami"`
	MorningStar        StarRule        `yaml:"morning_star"`
	EveningStar        StarRule        `yaml:"evening_star"`
	ThreeWhiteSoldiers Toggle          `yaml:"three_white_soldiers"`
	ThreeBlackCrows    Toggle          `yaml:"three_black_crows"`
	Piercing           PenetrationRule `yaml:"piercing_pattern"`
	DarkCloudCover     PenetrationRule `yaml:"dark_cloud_cover"`
	TweezerTop         TweezerRule     `yaml:"tweezer_top"`
	TweezerBottom      TweezerRule     `yaml:"tweezer_bottom"`
}

// DefaultConfig enables every rule with reference thresholds.
func DefaultConfig() Config {
	shadow := ShadowRule{Enabled: true, LongWickToBody: 2, ShortWickToBody: 0.3, MaxBodyToRange: 0.3}
	star := StarRule{Enabled: true, MaxMiddleBody: 0.5}
	pen := PenetrationRule{Enabled: true, MinPenetration: 0.5}
	tw := TweezerRule{Enabled: true, Tolerance: 0.001}
	on := Toggle{Enabled: true}
	return Config{
		Hammer:             shadow,
		InvertedHammer:     shadow,
		Doji:               DojiRule{Enabled: true, MaxBodyToRange: 0.1, MinLongWick: 0.6, MaxShortWick: 0.1},
		BullishEngulfing:   on,
		BearishEngulfing:   on,
		BullishHarami:      on,
		BearishHarami:      on,
		MorningStar:        star,
		EveningStar:        star,
		ThreeWhiteSoldiers: on,
		ThreeBlackCrows:    on,
		Piercing:           pen,
		DarkCloudCover:     pen,
		TweezerTop:         tw,
		TweezerBottom:      tw,
	}
}

func (c Config) Validate() error {
	for name, r := range map[string]ShadowRule{"hammer": c.Hammer, "inverted_hammer": c.InvertedHammer} {
		if r.Enabled && (r.LongWickToBody <= 0 || r.MaxBodyToRange <= 0 || r.MaxBodyToRange > 1) {
			return fmt.Errorf("patterns: %s thresholds out of range", name)
		}
	}
	if c.Doji.Enabled && (c.Doji.MaxBodyToRange <= 0 || c.Doji.MaxBodyToRange > 1) {
		return fmt.Errorf("patterns: doji max_body_to_range must be in (0,1]")
	}
	for name, r := range map[string]PenetrationRule{"piercing_pattern": c.Piercing, "dark_cloud_cover": c.DarkCloudCover} {
		if r.Enabled && (r.MinPenetration <= 0 || r.MinPenetration >= 1) {
			return fmt.Errorf("patterns: %s min_penetration must be in (0,1)", name)
		}
	}
	return nil
}
