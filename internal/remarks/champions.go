package remarks

import "sort"

// Champions returns the limit members of a cluster most similar to its
// centroid by cosine, most similar first, ties by smaller index. Clusters
// no larger than limit are returned whole in member order.
func Champions(members []int, vectors [][]float32, limit int) []int {
	if limit <= 0 || len(members) <= limit {
		return append([]int(nil), members...)
	}

	dim := len(vectors[members[0]])
	centroid := make([]float32, dim)
	for _, m := range members {
		for i, f := range vectors[m] {
			if i < dim {
				centroid[i] += f
			}
		}
	}
	for i := range centroid {
		centroid[i] /= float32(len(members))
	}
	cn := l2(centroid)

	type scored struct {
		idx int
		sim float64
	}
	ranked := make([]scored, len(members))
	for i, m := range members {
		ranked[i] = scored{idx: m, sim: cosine(vectors[m], centroid, l2(vectors[m]), cn)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].idx < ranked[j].idx
	})

	out := make([]int, limit)
	for i := range out {
		out[i] = ranked[i].idx
	}
	return out
}
