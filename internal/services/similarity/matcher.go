package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"CandleSense/internal/domain/models"
)

// Feature group names used as weight keys.
const (
	GroupBodyRatios      = "body_ratios"
	GroupBodyDirections  = "body_directions"
	GroupUpperWickRatios = "upper_wick_ratios"
	GroupLowerWickRatios = "lower_wick_ratios"
	GroupPatterns        = "patterns"
)

// DefaultWeights are the reference per-group weights. Scalar groups use the scalar wire names.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		GroupBodyRatios:       1.0,
		GroupBodyDirections:   1.2,
		GroupUpperWickRatios:  0.8,
		GroupLowerWickRatios:  0.8,
		"short_term_slope":    1.5,
		"medium_term_slope":   1.3,
		"long_term_slope":     1.0,
		"atr":                 1.1,
		"volatility_ratio":    1.2,
		"consecutive_bullish": 0.9,
		"consecutive_bearish": 0.9,
		"near_support":        1.3,
		"near_resistance":     1.3,
		GroupPatterns:         1.4,
	}
}

type Config struct {
	MinSimilarity float64            `yaml:"min_similarity" default:"0.75" validate:"gte=0,lte=1"`
	TopK          int                `yaml:"top_k" default:"10" validate:"gte=1"`
	MinMatches    int                `yaml:"min_matches" default:"1" validate:"gte=1"`
	HistoryLimit  int                `yaml:"history_limit" default:"1000" validate:"gte=1"`
	Weights       map[string]float64 `yaml:"weights"`
}

func DefaultConfig() Config {
	return Config{MinSimilarity: 0.75, TopK: 10, MinMatches: 1, HistoryLimit: 1000, Weights: DefaultWeights()}
}

func (c Config) Validate() error {
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("similarity: min_similarity must be in [0,1]")
	}
	if c.TopK < 1 || c.MinMatches < 1 {
		return fmt.Errorf("similarity: top_k and min_matches must be >= 1")
	}
	for k, w := range c.Weights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("similarity: weight %q must be >= 0", k)
		}
	}
	return nil
}

// ErrNotComparable is returned when a pair yields a non-finite score.
var ErrNotComparable = errors.New("feature sets not comparable")

// Match is one retained historical analogue.
type Match struct {
	Record     models.HistoricalRecord `json:"record"`
	Similarity float64                 `json:"similarity"`
	Outcome    models.Direction        `json:"outcome,omitempty"`
}

// Vote is the similarity-weighted outcome distribution over matches.
type Vote struct {
	Direction  models.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
	Up         float64          `json:"up"`
	Down       float64          `json:"down"`
	Samples    int              `json:"samples"`
}

// Result of a search. HasVote is false when no retained match carried an outcome.
type Result struct {
	Matches []Match `json:"matches"`
	Vote    Vote    `json:"vote"`
	HasVote bool    `json:"has_vote"`
	Scanned int     `json:"scanned"`
	Skipped int     `json:"skipped"`
}

// Matcher ranks historical feature sets against the current one. It is stateless.
type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) (*Matcher, error) {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

func (m *Matcher) Config() Config { return m.cfg }

// Similarity is the weighted mean of per-group similarities, in [0,1]. Groups with zero
// weight or no data on either side do not count; no comparable groups scores 0.
func (m *Matcher) Similarity(a, b models.FeatureSet) (float64, error) {
	var num, den float64
	add := func(group string, sim float64) {
		w := m.cfg.Weights[group]
		if w <= 0 {
			return
		}
		num += sim * w
		den += w
	}

	seqs := []struct {
		group string
		x, y  []float64
	}{
		{GroupBodyRatios, a.Arrays.BodyRatios, b.Arrays.BodyRatios},
		{GroupBodyDirections, a.Arrays.BodyDirections, b.Arrays.BodyDirections},
		{GroupUpperWickRatios, a.Arrays.UpperWickRatios, b.Arrays.UpperWickRatios},
		{GroupLowerWickRatios, a.Arrays.LowerWickRatios, b.Arrays.LowerWickRatios},
	}
	for _, s := range seqs {
		if len(s.x) == 0 && len(s.y) == 0 {
			continue
		}
		add(s.group, SequenceSimilarity(s.x, s.y))
	}

	as, bs := a.Scalars.ScalarValues(), b.Scalars.ScalarValues()
	for i := range as {
		add(as[i].Name, ScalarSimilarity(as[i].Value, bs[i].Value))
	}

	add(GroupPatterns, Jaccard(a.Patterns, b.Patterns))

	if den == 0 {
		return 0, nil
	}
	score := num / den
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, ErrNotComparable
	}
	return math.Max(0, math.Min(1, score)), nil
}

// Match scores every record, keeps those at or above MinSimilarity, ranks them by similarity
// and truncates to TopK. Records that cannot be scored are skipped.
func (m *Matcher) Match(current models.FeatureSet, history []models.HistoricalRecord) Result {
	res := Result{Scanned: len(history)}
	for _, rec := range history {
		sim, err := m.Similarity(current, rec.FeatureSet)
		if err != nil {
			res.Skipped++
			continue
		}
		if sim < m.cfg.MinSimilarity {
			continue
		}
		res.Matches = append(res.Matches, Match{Record: rec, Similarity: sim, Outcome: rec.Outcome})
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Similarity > res.Matches[j].Similarity
	})
	if len(res.Matches) > m.cfg.TopK {
		res.Matches = res.Matches[:m.cfg.TopK]
	}

	if vote, ok := Infer(res.Matches); ok && vote.Samples >= m.cfg.MinMatches {
		res.Vote, res.HasVote = vote, true
	}
	return res
}

// Infer sums similarity per outcome class and picks the heavier side. Matches without a
// directional outcome do not vote. Zero total weight reports ok=false. On an exact tie the
// outcome of the most similar voting match wins.
func Infer(matches []Match) (Vote, bool) {
	var v Vote
	var top Match
	for _, mt := range matches {
		if !mt.Outcome.IsDirectional() || mt.Similarity <= 0 {
			continue
		}
		switch mt.Outcome {
		case models.DirectionUp:
			v.Up += mt.Similarity
		case models.DirectionDown:
			v.Down += mt.Similarity
		}
		if v.Samples == 0 || mt.Similarity > top.Similarity {
			top = mt
		}
		v.Samples++
	}
	total := v.Up + v.Down
	if total <= 0 {
		return Vote{}, false
	}
	v.Up /= total
	v.Down /= total
	switch {
	case v.Up > v.Down:
		v.Direction, v.Confidence = models.DirectionUp, v.Up
	case v.Down > v.Up:
		v.Direction, v.Confidence = models.DirectionDown, v.Down
	default:
		v.Direction, v.Confidence = top.Outcome, 0.5
	}
	return v, true
}
