package patterns

// Tag names a detected candle formation.
type Tag string

const (
	Hammer             Tag = "hammer"
	InvertedHammer     Tag = "inverted_hammer"
	ShootingStar       Tag = "shooting_star"
	Doji               Tag = "doji"
	DragonflyDoji      Tag = "dragonfly_doji"
	GravestoneDoji     Tag = "gravestone_doji"
	BullishEngulfing   Tag = "bullish_engulfing"
	BearishEngulfing   Tag = "bearish_engulfing"
	BullishHarami      Tag = "bullish_harami"
	BearishHarami      Tag = "bearish_harami"
	PiercingPattern    Tag = "piercing_pattern"
	DarkCloudCover     Tag = "dark_cloud_cover"
	TweezerTop         Tag = "tweezer_top"
	TweezerBottom      Tag = "tweezer_bottom"
	MorningStar        Tag = "morning_star"
	EveningStar        Tag = "evening_star"
	ThreeWhiteSoldiers Tag = "three_white_soldiers"
	ThreeBlackCrows    Tag = "three_black_crows"
)

// Bias is the directional reading of a tag.
type Bias int

const (
	Neutral Bias = iota
	Bullish
	Bearish
)

func (b Bias) String() string {
	switch b {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "neutral"
	}
}

var biases = map[Tag]Bias{
	Hammer:             Bullish,
	InvertedHammer:     Bullish,
	DragonflyDoji:      Bullish,
	BullishEngulfing:   Bullish,
	BullishHarami:      Bullish,
	PiercingPattern:    Bullish,
	TweezerBottom:      Bullish,
	MorningStar:        Bullish,
	ThreeWhiteSoldiers: Bullish,

	ShootingStar:     Bearish,
	GravestoneDoji:   Bearish,
	BearishEngulfing: Bearish,
	BearishHarami:    Bearish,
	DarkCloudCover:   Bearish,
	TweezerTop:       Bearish,
	EveningStar:      Bearish,
	ThreeBlackCrows:  Bearish,

	Doji: Neutral,
}

var strong = map[Tag]struct{}{
	BullishEngulfing:   {},
	MorningStar:        {},
	ThreeWhiteSoldiers: {},
	Hammer:             {},
	PiercingPattern:    {},
	BearishEngulfing:   {},
	EveningStar:        {},
	ThreeBlackCrows:    {},
	ShootingStar:       {},
	DarkCloudCover:     {},
}

// BiasOf returns the static classification of a tag; unknown tags are neutral.
func BiasOf(t Tag) Bias { return biases[t] }

// IsStrong reports whether a tag is weighted by the ensemble pattern adjustment.
func IsStrong(t Tag) bool {
	_, ok := strong[t]
	return ok
}

// StrongCounts counts strong bullish and strong bearish tags among names.
func StrongCounts(names []string) (bullish, bearish int) {
	for _, n := range names {
		t := Tag(n)
		if !IsStrong(t) {
			continue
		}
		switch BiasOf(t) {
		case Bullish:
			bullish++
		case Bearish:
			bearish++
		}
	}
	return bullish, bearish
}

// Strings converts tags to their wire names.
func Strings(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}
