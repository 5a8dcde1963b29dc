package similarity

import "math"

// DTW returns the dynamic-time-warping alignment cost between a and b using absolute
// difference as the local cost. Either side empty yields +Inf.
func DTW(a, b []float64) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}
	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := 1; j <= m; j++ {
		prev[j] = math.Inf(1)
	}
	for i := 1; i <= n; i++ {
		cur[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			best := prev[j-1]
			if prev[j] < best {
				best = prev[j]
			}
			if cur[j-1] < best {
				best = cur[j-1]
			}
			cur[j] = math.Abs(a[i-1]-b[j-1]) + best
		}
		prev, cur = cur, prev
	}
	return prev[m]
}

// SequenceSimilarity maps a DTW cost into [0,1] as 1 - min(cost/max(len), 1).
func SequenceSimilarity(a, b []float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	cost := DTW(a, b)
	if math.IsNaN(cost) {
		return math.NaN()
	}
	norm := cost / float64(max(len(a), len(b)))
	return 1 - math.Min(norm, 1)
}

// ScalarSimilarity is 1 - min(|a-b| / max(|a|,|b|,1), 1).
func ScalarSimilarity(a, b float64) float64 {
	den := math.Max(math.Max(math.Abs(a), math.Abs(b)), 1)
	return 1 - math.Min(math.Abs(a-b)/den, 1)
}

// Jaccard is |a∩b| / |a∪b| over tag sets; two empty sets are identical.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}
