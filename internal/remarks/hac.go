package remarks

import (
	"math"
	"sort"
)

// Cluster runs agglomerative clustering with complete linkage over cosine
// distance. Merging continues until the nearest linkage distance exceeds
// threshold; a pair exactly at threshold still merges. Each result lists member indices ascending; clusters are
// ordered by their smallest member. Equal distances merge the pair with the
// smallest indices first, so the output depends only on the input.
func Cluster(vectors [][]float32, threshold float64) [][]int {
	n := len(vectors)
	if n == 0 {
		return nil
	}

	dist := newDistanceMatrix(vectors)
	active := make([]bool, n)
	members := make([][]int, n)
	nn := make([]int, n)
	nnDist := make([]float32, n)
	for i := range members {
		active[i] = true
		members[i] = []int{i}
	}
	for i := range n {
		nn[i], nnDist[i] = dist.nearest(i, active)
	}

	for {
		a := -1
		for i := range n {
			if active[i] && nn[i] >= 0 && (a < 0 || nnDist[i] < nnDist[a]) {
				a = i
			}
		}
		if a < 0 || float64(nnDist[a]) > threshold {
			break
		}
		b := nn[a]
		if b < a {
			a, b = b, a
		}

		members[a] = append(members[a], members[b]...)
		members[b] = nil
		active[b] = false
		for k := range n {
			if active[k] && k != a {
				d := max(dist.at(a, k), dist.at(b, k))
				dist.set(a, k, d)
			}
		}

		for k := range n {
			if !active[k] {
				continue
			}
			if k == a || nn[k] == a || nn[k] == b {
				nn[k], nnDist[k] = dist.nearest(k, active)
			}
		}
	}

	var clusters [][]int
	for i := range n {
		if active[i] {
			sort.Ints(members[i])
			clusters = append(clusters, members[i])
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}

// distanceMatrix is a symmetric n*n matrix of cosine distances.
type distanceMatrix struct {
	n int
	d []float32
}

func newDistanceMatrix(vectors [][]float32) *distanceMatrix {
	n := len(vectors)
	m := &distanceMatrix{n: n, d: make([]float32, n*n)}
	norms := make([]float64, n)
	for i, v := range vectors {
		norms[i] = l2(v)
	}
	for i := range n {
		for j := i + 1; j < n; j++ {
			d := float32(1 - cosine(vectors[i], vectors[j], norms[i], norms[j]))
			m.set(i, j, d)
		}
	}
	return m
}

func (m *distanceMatrix) at(i, j int) float32 { return m.d[i*m.n+j] }

func (m *distanceMatrix) set(i, j int, v float32) {
	m.d[i*m.n+j] = v
	m.d[j*m.n+i] = v
}

// nearest returns the closest active cluster to i, preferring the smallest
// index on ties, or -1 when i is alone.
func (m *distanceMatrix) nearest(i int, active []bool) (int, float32) {
	best, bestDist := -1, float32(math.Inf(1))
	for j := range m.n {
		if j == i || !active[j] {
			continue
		}
		if d := m.at(i, j); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best, bestDist
}

func l2(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

// cosine returns the cosine similarity, 0 when either vector is zero or the
// dimensions differ.
func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
