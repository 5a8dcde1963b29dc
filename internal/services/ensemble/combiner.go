package ensemble

import (
	"fmt"
	"math"
	"time"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/services/neural"
	"CandleSense/internal/services/patterns"
	"CandleSense/internal/services/similarity"
)

// Config holds the merge weights and the heuristic pattern constants. The pattern bonus and
// conflict penalty are tunable, not derived from data.
type Config struct {
	HistoricalWeight   float64 `yaml:"historical_weight" default:"0.4" validate:"gte=0"`
	NeuralWeight       float64 `yaml:"neural_weight" default:"0.6" validate:"gte=0"`
	PatternBonus       float64 `yaml:"pattern_bonus" default:"0.05" validate:"gte=0,lte=1"`
	ConflictPenalty    float64 `yaml:"conflict_penalty" default:"0.1" validate:"gte=0,lte=1"`
	MinConfidence      float64 `yaml:"min_confidence" default:"0.65" validate:"gte=0,lte=1"`
	EnrichmentWeight   float64 `yaml:"enrichment_weight" default:"0.2" validate:"gte=0,lte=1"`
	ManipulationFactor float64 `yaml:"manipulation_factor" default:"0.5" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		HistoricalWeight:   0.4,
		NeuralWeight:       0.6,
		PatternBonus:       0.05,
		ConflictPenalty:    0.10,
		MinConfidence:      0.65,
		EnrichmentWeight:   0.2,
		ManipulationFactor: 0.5,
	}
}

func (c Config) Validate() error {
	if c.HistoricalWeight < 0 || c.NeuralWeight < 0 || c.HistoricalWeight+c.NeuralWeight == 0 {
		return fmt.Errorf("ensemble: source weights must be non-negative and not both zero")
	}
	for name, v := range map[string]float64{
		"pattern_bonus":       c.PatternBonus,
		"conflict_penalty":    c.ConflictPenalty,
		"min_confidence":      c.MinConfidence,
		"enrichment_weight":   c.EnrichmentWeight,
		"manipulation_factor": c.ManipulationFactor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("ensemble: %s must be in [0,1]", name)
		}
	}
	return nil
}

// Input is what one prediction cycle hands to the combiner. A nil source is unusable.
type Input struct {
	Historical *similarity.Vote
	Neural     *neural.Output
	Patterns   []string
	Features   models.FeatureSet
	At         time.Time
}

// SourceResult is one predictor's directional call as the combiner saw it.
type SourceResult struct {
	Direction  models.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
	Up         float64          `json:"up"`
	Down       float64          `json:"down"`
	Weight     float64          `json:"weight"`
}

// Output is the merged call. Consumers must check MeetsThreshold before acting.
type Output struct {
	Direction           models.Direction  `json:"direction"`
	RawConfidence       float64           `json:"raw_confidence"`
	Confidence          float64           `json:"confidence"`
	MeetsThreshold      bool              `json:"meets_threshold"`
	Method              models.Method     `json:"method"`
	Historical          *SourceResult     `json:"historical,omitempty"`
	Neural              *SourceResult     `json:"neural,omitempty"`
	PatternAdjustment   float64           `json:"pattern_adjustment"`
	Patterns            []string          `json:"patterns"`
	Features            models.FeatureSet `json:"features"`
	ManipulationWarning bool              `json:"manipulation_warning"`
	CreatedAt           time.Time         `json:"created_at"`
}

type Combiner struct {
	cfg Config
}

func NewCombiner(cfg Config) (*Combiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Combiner{cfg: cfg}, nil
}

func (c *Combiner) Config() Config { return c.cfg }

// Combine merges the usable sources. One usable source is forwarded unchanged, none yields
// method "none" with zero confidence, two are blended per side and then pattern-adjusted.
func (c *Combiner) Combine(in Input) Output {
	out := Output{Patterns: append([]string(nil), in.Patterns...), Features: in.Features, CreatedAt: in.At}
	hist := c.historical(in.Historical)
	nn := c.neural(in.Neural)
	out.Historical, out.Neural = hist, nn

	switch {
	case hist == nil && nn == nil:
		out.Method = models.MethodNone
		return out
	case hist == nil:
		out.Method = models.MethodMLOnly
		out.Direction, out.RawConfidence, out.Confidence = nn.Direction, nn.Confidence, nn.Confidence
	case nn == nil:
		out.Method = models.MethodHistoricalOnly
		out.Direction, out.RawConfidence, out.Confidence = hist.Direction, hist.Confidence, hist.Confidence
	default:
		out.Method = models.MethodEnsemble
		total := hist.Weight + nn.Weight
		up := (hist.Up*hist.Weight + nn.Up*nn.Weight) / total
		down := (hist.Down*hist.Weight + nn.Down*nn.Weight) / total
		switch {
		case up > down:
			out.Direction, out.RawConfidence = models.DirectionUp, up
		case down > up:
			out.Direction, out.RawConfidence = models.DirectionDown, down
		default:
			out.Direction, out.RawConfidence = nn.Direction, up
		}
		out.PatternAdjustment = c.patternAdjustment(out.Direction, in.Patterns)
		out.Confidence = clamp01(out.RawConfidence + out.PatternAdjustment)
	}
	out.MeetsThreshold = out.Confidence >= c.cfg.MinConfidence
	return out
}

// patternAdjustment is a bonus per strong pattern agreeing with dir, or a flat penalty when
// strong bullish and strong bearish patterns fire together.
func (c *Combiner) patternAdjustment(dir models.Direction, tags []string) float64 {
	bull, bear := patterns.StrongCounts(tags)
	if bull > 0 && bear > 0 {
		return -c.cfg.ConflictPenalty
	}
	switch dir {
	case models.DirectionUp:
		return c.cfg.PatternBonus * float64(bull)
	case models.DirectionDown:
		return c.cfg.PatternBonus * float64(bear)
	}
	return 0
}

func (c *Combiner) historical(v *similarity.Vote) *SourceResult {
	if v == nil || !v.Direction.IsDirectional() || c.cfg.HistoricalWeight == 0 {
		return nil
	}
	return &SourceResult{Direction: v.Direction, Confidence: v.Confidence, Up: v.Up, Down: v.Down, Weight: c.cfg.HistoricalWeight}
}

// neural treats a NEUTRAL arg-max as no call.
func (c *Combiner) neural(o *neural.Output) *SourceResult {
	if o == nil || !o.Direction.IsDirectional() || len(o.Probabilities) < int(neural.NumClasses) || c.cfg.NeuralWeight == 0 {
		return nil
	}
	return &SourceResult{Direction: o.Direction, Confidence: o.Confidence, Up: o.Up(), Down: o.Down(), Weight: c.cfg.NeuralWeight}
}

// BinaryPair synthesises an {up, down} pair for a source that only reports a label and confidence.
func BinaryPair(dir models.Direction, confidence float64) (up, down float64) {
	if dir == models.DirectionDown {
		return 1 - confidence, confidence
	}
	return confidence, 1 - confidence
}

// ApplyEnrichment nudges confidence toward an external judgment by EnrichmentWeight and,
// when manipulation was flagged, scales it down. A judgment without a confidence (zero)
// leaves confidence alone. Direction is never changed.
func (c *Combiner) ApplyEnrichment(out Output, externalConfidence float64, manipulation bool) Output {
	if externalConfidence != 0 {
		w := c.cfg.EnrichmentWeight
		out.Confidence = clamp01(out.Confidence*(1-w) + clamp01(externalConfidence)*w)
	}
	if manipulation {
		return c.FlagManipulation(out)
	}
	out.MeetsThreshold = out.Confidence >= c.cfg.MinConfidence
	return out
}

// FlagManipulation marks out as suspicious and scales its confidence by ManipulationFactor.
func (c *Combiner) FlagManipulation(out Output) Output {
	if !out.ManipulationWarning {
		out.Confidence = clamp01(out.Confidence * c.cfg.ManipulationFactor)
	}
	out.ManipulationWarning = true
	out.MeetsThreshold = out.Confidence >= c.cfg.MinConfidence
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
