package neural

import (
	"math/rand"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/services/features"
)

// Sample is one (input, one-hot target) pair.
type Sample struct {
	Input  []float64
	Target []float64
	Label  Class
}

// NewSample one-hot encodes label.
func NewSample(input []float64, label Class) Sample {
	t := make([]float64, NumClasses)
	t[label] = 1
	return Sample{Input: input, Target: t, Label: label}
}

// PrepareSamples turns validated predictions into training pairs. Predictions that are not
// validated, carry no feature set, or have no known outcome are skipped.
func PrepareSamples(preds []models.Prediction) []Sample {
	out := make([]Sample, 0, len(preds))
	for _, p := range preds {
		if !p.Validated || p.FeatureSet.IsZero() {
			continue
		}
		label, ok := ClassOf(p.ActualOutcome)
		if !ok {
			continue
		}
		out = append(out, NewSample(features.Flatten(p.FeatureSet), label))
	}
	return out
}

// Split shuffles a copy of samples with seed and cuts it so that roughly ratio of them
// land in train. The same seed and input always give the same split.
func Split(samples []Sample, ratio float64, seed int64) (train, test []Sample) {
	shuffled := append([]Sample(nil), samples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	cut := int(float64(len(shuffled)) * ratio)
	if cut < 0 {
		cut = 0
	}
	if cut > len(shuffled) {
		cut = len(shuffled)
	}
	return shuffled[:cut], shuffled[cut:]
}
