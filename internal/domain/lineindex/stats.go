package lineindex

import (
	"math"
	"sort"
)

// fillLengthStats computes the aggregate length statistics over the
// non-empty line lengths collected during a build pass.
func fillLengthStats(stats *LineStats, lengths []int64) {
	if len(lengths) == 0 {
		return
	}

	var sum float64
	for _, l := range lengths {
		sum += float64(l)
	}
	stats.AvgLength = sum / float64(len(lengths))

	sorted := append([]int64(nil), lengths...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	stats.MedianLength = percentile(sorted, 50)
	stats.P95Length = percentile(sorted, 95)
	stats.P99Length = percentile(sorted, 99)

	if len(lengths) > 1 {
		var sq float64
		for _, l := range lengths {
			d := float64(l) - stats.AvgLength
			sq += d * d
		}
		stats.StddevLength = math.Sqrt(sq / float64(len(lengths)-1))
	}
}

// percentile interpolates the p-th percentile over an ascending slice.
func percentile(sorted []int64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	k := float64(n-1) * p / 100
	f := int(k)
	c := f + 1
	if c >= n {
		c = f
	}
	return float64(sorted[f]) + (k-float64(f))*float64(sorted[c]-sorted[f])
}
