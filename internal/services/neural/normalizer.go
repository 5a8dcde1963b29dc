package neural

import "math"

// Normalizer applies a z-score fitted on training inputs. An unfitted normalizer is the identity.
type Normalizer struct {
	Means   []float64 `json:"means"`
	Stddevs []float64 `json:"stddevs"`
	Fitted  bool      `json:"fitted"`
}

func NewNormalizer(width int) *Normalizer {
	return &Normalizer{Means: make([]float64, width), Stddevs: make([]float64, width)}
}

// Fit computes per-column mean and population standard deviation. Near-constant columns
// get a standard deviation of 1 so they pass through centred.
func (n *Normalizer) Fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	width := len(n.Means)
	for i := 0; i < width; i++ {
		sum := 0.0
		for _, r := range rows {
			sum += r[i]
		}
		n.Means[i] = sum / float64(len(rows))
	}
	for i := 0; i < width; i++ {
		ss := 0.0
		for _, r := range rows {
			d := r[i] - n.Means[i]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(len(rows)))
		if sd < 1e-10 {
			sd = 1
		}
		n.Stddevs[i] = sd
	}
	n.Fitted = true
}

func (n *Normalizer) Transform(x []float64) []float64 {
	if !n.Fitted || len(x) != len(n.Means) {
		return x
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - n.Means[i]) / n.Stddevs[i]
	}
	return out
}

func (n *Normalizer) Clone() *Normalizer {
	if n == nil {
		return nil
	}
	return &Normalizer{
		Means:   append([]float64(nil), n.Means...),
		Stddevs: append([]float64(nil), n.Stddevs...),
		Fitted:  n.Fitted,
	}
}
