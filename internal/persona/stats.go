package persona

import (
	"math"
	"slices"
)

// Percentile returns the floor(n*p)-th element of values in numeric order.
// Input order does not matter; values is not modified.
func Percentile(values []int, p float64) int {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	idx := int(math.Floor(float64(len(sorted)) * p))
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Median returns the middle value in numeric order, averaging the two middle
// values for even-length input. Input order does not matter.
func Median(values []int) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

// MedianMinute rounds Median to a whole minute.
func MedianMinute(values []int) int {
	return int(math.Round(Median(values)))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
