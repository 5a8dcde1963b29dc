package patterns

import (
	"math"

	"CandleSense/internal/domain/models"
)

// Detector evaluates candle formation rules over the newest one to three candles.
// Detect is pure: identical input always yields identical tags in the same order.
type Detector struct {
	cfg   Config
	rules []rule
}

type rule struct {
	tag     Tag
	span    int
	enabled bool
	match   func(cs []models.Candle) bool
}

func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{cfg: cfg}
	d.rules = []rule{
		{Hammer, 1, cfg.Hammer.Enabled, func(cs []models.Candle) bool { return lowerShadow(cs[0], cfg.Hammer) }},
		// same shape as a shooting star; the preceding candle decides which one it is
		{InvertedHammer, 2, cfg.InvertedHammer.Enabled, func(cs []models.Candle) bool {
			return !cs[0].IsBullish() && upperShadow(cs[1], cfg.InvertedHammer)
		}},
		{Doji, 1, cfg.Doji.Enabled, func(cs []models.Candle) bool { return isDoji(cs[0], cfg.Doji) }},
		{DragonflyDoji, 1, cfg.Doji.Enabled, func(cs []models.Candle) bool { return dragonfly(cs[0], cfg.Doji) }},
		{GravestoneDoji, 1, cfg.Doji.Enabled, func(cs []models.Candle) bool { return gravestone(cs[0], cfg.Doji) }},
		{ShootingStar, 2, cfg.InvertedHammer.Enabled, func(cs []models.Candle) bool {
			return cs[0].IsBullish() && upperShadow(cs[1], cfg.InvertedHammer)
		}},
		{BullishEngulfing, 2, cfg.BullishEngulfing.Enabled, func(cs []models.Candle) bool { return bullishEngulfing(cs[0], cs[1]) }},
		{BearishEngulfing, 2, cfg.BearishEngulfing.Enabled, func(cs []models.Candle) bool { return bearishEngulfing(cs[0], cs[1]) }},
		{BullishHarami, 2, cfg.BullishHarami.Enabled, func(cs []models.Candle) bool { return bullishHarami(cs[0], cs[1]) }},
		{BearishHarami, 2, cfg.BearishHarami.Enabled, func(cs []models.Candle) bool { return bearishHarami(cs[0], cs[1]) }},
		{PiercingPattern, 2, cfg.Piercing.Enabled, func(cs []models.Candle) bool { return piercing(cs[0], cs[1], cfg.Piercing) }},
		{DarkCloudCover, 2, cfg.DarkCloudCover.Enabled, func(cs []models.Candle) bool {
			return darkCloud(cs[0], cs[1], cfg.DarkCloudCover)
		}},
		{TweezerTop, 2, cfg.TweezerTop.Enabled, func(cs []models.Candle) bool { return tweezerTop(cs[0], cs[1], cfg.TweezerTop) }},
		{TweezerBottom, 2, cfg.TweezerBottom.Enabled, func(cs []models.Candle) bool {
			return tweezerBottom(cs[0], cs[1], cfg.TweezerBottom)
		}},
		{MorningStar, 3, cfg.MorningStar.Enabled, func(cs []models.Candle) bool { return morningStar(cs, cfg.MorningStar) }},
		{EveningStar, 3, cfg.EveningStar.Enabled, func(cs []models.Candle) bool { return eveningStar(cs, cfg.EveningStar) }},
		{ThreeWhiteSoldiers, 3, cfg.ThreeWhiteSoldiers.Enabled, threeWhiteSoldiers},
		{ThreeBlackCrows, 3, cfg.ThreeBlackCrows.Enabled, threeBlackCrows},
	}
	return d, nil
}

// Detect returns the tags matching the end of candles, in rule order.
func (d *Detector) Detect(candles []models.Candle) []Tag {
	var out []Tag
	for _, r := range d.rules {
		if !r.enabled || len(candles) < r.span {
			continue
		}
		if r.match(candles[len(candles)-r.span:]) {
			out = append(out, r.tag)
		}
	}
	return out
}

// DetectNames is Detect with wire names.
func (d *Detector) DetectNames(candles []models.Candle) []string {
	return Strings(d.Detect(candles))
}

// Ratio rules treat a zero-range candle as no match.

func lowerShadow(c models.Candle, r ShadowRule) bool {
	rng := c.Range()
	if rng <= 0 {
		return false
	}
	body := c.Body()
	return c.LowerWick() >= r.LongWickToBody*body &&
		c.UpperWick() <= r.ShortWickToBody*body &&
		body <= r.MaxBodyToRange*rng
}

func upperShadow(c models.Candle, r ShadowRule) bool {
	rng := c.Range()
	if rng <= 0 {
		return false
	}
	body := c.Body()
	return c.UpperWick() >= r.LongWickToBody*body &&
		c.LowerWick() <= r.ShortWickToBody*body &&
		body <= r.MaxBodyToRange*rng
}

func isDoji(c models.Candle, r DojiRule) bool {
	rng := c.Range()
	return rng > 0 && c.Body()/rng < r.MaxBodyToRange
}

func dragonfly(c models.Candle, r DojiRule) bool {
	rng := c.Range()
	return isDoji(c, r) && c.LowerWick() > r.MinLongWick*rng && c.UpperWick() < r.MaxShortWick*rng
}

func gravestone(c models.Candle, r DojiRule) bool {
	rng := c.Range()
	return isDoji(c, r) && c.UpperWick() > r.MinLongWick*rng && c.LowerWick() < r.MaxShortWick*rng
}

func bullishEngulfing(prev, cur models.Candle) bool {
	return prev.IsBearish() && cur.IsBullish() && cur.Open < prev.Close && cur.Close > prev.Open
}

func bearishEngulfing(prev, cur models.Candle) bool {
	return prev.IsBullish() && cur.IsBearish() && cur.Open > prev.Close && cur.Close < prev.Open
}

func bullishHarami(prev, cur models.Candle) bool {
	return prev.IsBearish() && cur.IsBullish() && cur.Open > prev.Close && cur.Close < prev.Open
}

func bearishHarami(prev, cur models.Candle) bool {
	return prev.IsBullish() && cur.IsBearish() && cur.Open < prev.Close && cur.Close > prev.Open
}

func piercing(prev, cur models.Candle, r PenetrationRule) bool {
	if !prev.IsBearish() || !cur.IsBullish() {
		return false
	}
	level := prev.Close + r.MinPenetration*prev.Body()
	return cur.Open < prev.Close && cur.Close > level && cur.Close < prev.Open
}

func darkCloud(prev, cur models.Candle, r PenetrationRule) bool {
	if !prev.IsBullish() || !cur.IsBearish() {
		return false
	}
	level := prev.Close - r.MinPenetration*prev.Body()
	return cur.Open > prev.Close && cur.Close < level && cur.Close > prev.Open
}

func tweezerTop(prev, cur models.Candle, r TweezerRule) bool {
	return prev.IsBullish() && cur.IsBearish() && near(prev.High, cur.High, r.Tolerance)
}

func tweezerBottom(prev, cur models.Candle, r TweezerRule) bool {
	return prev.IsBearish() && cur.IsBullish() && near(prev.Low, cur.Low, r.Tolerance)
}

func near(a, b, tol float64) bool {
	ref := math.Max(math.Abs(a), math.Abs(b))
	if ref == 0 {
		return true
	}
	return math.Abs(a-b) <= tol*ref
}

func morningStar(cs []models.Candle, r StarRule) bool {
	first, mid, last := cs[0], cs[1], cs[2]
	return first.IsBearish() && mid.Body() < r.MaxMiddleBody*first.Body() && last.IsBullish()
}

func eveningStar(cs []models.Candle, r StarRule) bool {
	first, mid, last := cs[0], cs[1], cs[2]
	return first.IsBullish() && mid.Body() < r.MaxMiddleBody*first.Body() && last.IsBearish()
}

func threeWhiteSoldiers(cs []models.Candle) bool {
	for i, c := range cs {
		if !c.IsBullish() || (i > 0 && c.Close <= cs[i-1].Close) {
			return false
		}
	}
	return true
}

func threeBlackCrows(cs []models.Candle) bool {
	for i, c := range cs {
		if !c.IsBearish() || (i > 0 && c.Close >= cs[i-1].Close) {
			return false
		}
	}
	return true
}
