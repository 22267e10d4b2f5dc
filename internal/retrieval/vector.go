package retrieval

import (
	"container/heap"
	"math"
	"sort"
)

// vectorRanker scores chunks by cosine similarity to a query embedding.
type vectorRanker struct {
	vectors [][]float32
	norms   []float32
}

func newVectorRanker(vectors [][]float32) *vectorRanker {
	v := &vectorRanker{vectors: vectors, norms: make([]float32, len(vectors))}
	for i, vec := range vectors {
		v.norms[i] = norm(vec)
	}
	return v
}

// topK performs a brute-force scan keeping the k most similar chunks in a
// min-heap. Equal scores prefer the earlier chunk.
func (v *vectorRanker) topK(query []float32, k int) []hit {
	queryNorm := norm(query)
	if queryNorm == 0 || k <= 0 {
		return nil
	}

	h := &hitHeap{}
	for pos, vec := range v.vectors {
		if v.norms[pos] == 0 || len(vec) != len(query) {
			continue
		}
		c := hit{pos: pos, score: float64(cosine(query, vec, queryNorm, v.norms[pos]))}
		if h.Len() < k {
			heap.Push(h, c)
		} else if h.less((*h)[0], c) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}

	hits := []hit(*h)
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].pos < hits[j].pos
	})
	return hits
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * bNorm) with precomputed norms.
func cosine(a, b []float32, aNorm, bNorm float32) float32 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (float64(aNorm) * float64(bNorm)))
}

// hitHeap is a min-heap whose root is the weakest retained hit.
type hitHeap []hit

// less reports whether a ranks below b: lower score, or equal score and later position.
func (h hitHeap) less(a, b hit) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.pos > b.pos
}

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return h.less(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(hit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
