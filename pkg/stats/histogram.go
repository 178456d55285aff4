package stats

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// Histogram counts samples into the bins defined by edges, which must be sorted ascending.
// Bin i covers [edges[i], edges[i+1]), except the last bin which also includes its upper edge.
// Samples outside [edges[0], edges[len-1]] are ignored.
// The result has len(edges)-1 entries.
func Histogram[T constraints.Float | constraints.Integer](samples []T, edges []float64) []int {
	if len(edges) < 2 {
		return nil
	}
	counts := make([]int, len(edges)-1)
	lo := edges[0]
	hi := edges[len(edges)-1]
	for _, s := range samples {
		v := float64(s)
		if v < lo || v > hi {
			continue
		}
		if v == hi {
			counts[len(counts)-1]++
			continue
		}
		// First edge strictly greater than v, minus one, is the bin
		i := sort.SearchFloat64s(edges, v)
		if i < len(edges) && edges[i] == v {
			counts[i]++
		} else {
			counts[i-1]++
		}
	}
	return counts
}
