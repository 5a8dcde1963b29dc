package features

import (
	"fmt"
	"math"
	"strings"

	"CandleSense/internal/domain/models"
)

const (
	// SequenceSlots is how many of the newest values of each ordered array enter the vector.
	SequenceSlots = 10
	// ScalarSlots is the fixed scalar block; unused slots stay zero.
	ScalarSlots = 20
	// VectorSize is the classifier input width.
	VectorSize = 4*SequenceSlots + ScalarSlots
)

// Flatten lays a feature set out as a fixed-order, fixed-length vector. Short arrays are
// left-padded with zeros so the newest value always sits in the same slot.
func Flatten(fs models.FeatureSet) []float64 {
	out := make([]float64, VectorSize)
	seqs := [][]float64{
		fs.Arrays.BodyRatios,
		fs.Arrays.BodyDirections,
		fs.Arrays.UpperWickRatios,
		fs.Arrays.LowerWickRatios,
	}
	for i, seq := range seqs {
		block := out[i*SequenceSlots : (i+1)*SequenceSlots]
		src := tailFloats(seq, SequenceSlots)
		copy(block[SequenceSlots-len(src):], src)
	}

	scalars := fs.Scalars.ScalarValues()
	base := 4 * SequenceSlots
	for i := 0; i < len(scalars) && i < ScalarSlots; i++ {
		out[base+i] = finite(scalars[i].Value)
	}
	return out
}

// Signature is a coarse bucket key built from key scalars rounded to two decimals.
// Different feature sets may share a signature.
func Signature(fs models.FeatureSet) string {
	s := fs.Scalars
	parts := []string{
		round2(s.AvgBodyRatio),
		round2(s.ShortTermSlope),
		round2(s.MediumTermSlope),
		round2(s.LongTermSlope),
		round2(s.VolatilityRatio),
		fmt.Sprintf("%d", s.ConsecutiveBullish),
		fmt.Sprintf("%d", s.ConsecutiveBearish),
		round2(s.BullishRatio),
	}
	return strings.Join(parts, "_")
}

func round2(v float64) string {
	r := math.Round(finite(v)*100) / 100
	if r == 0 {
		r = 0 // normalise -0
	}
	return fmt.Sprintf("%.2f", r)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
