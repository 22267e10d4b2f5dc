package retrieval

import (
	"math"
	"sort"
)

const (
	k1 = 1.2
	b  = 0.75
)

// hit is a ranked position into the index's chunk slice.
type hit struct {
	pos   int
	score float64
}

// lexicalRanker scores chunks with Okapi BM25 over tokenized content.
type lexicalRanker struct {
	termFreqs []map[string]int
	docLens   []int
	avgLen    float64
	docFreq   map[string]int
}

func newLexicalRanker(chunks []Chunk) *lexicalRanker {
	l := &lexicalRanker{
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		docFreq:   make(map[string]int),
	}
	var total int
	for i, c := range chunks {
		tf := make(map[string]int)
		tokens := tokenize(c.Content)
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			l.docFreq[t]++
		}
		l.termFreqs[i] = tf
		l.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(chunks) > 0 {
		l.avgLen = float64(total) / float64(len(chunks))
	}
	return l
}

// topK returns up to k chunks with a positive score, best first; equal
// scores keep corpus order.
func (l *lexicalRanker) topK(query string, k int) []hit {
	terms := uniqueTerms(tokenize(query))
	if len(terms) == 0 {
		return nil
	}
	n := int64(len(l.termFreqs))

	var hits []hit
	for pos, tf := range l.termFreqs {
		var score float64
		for _, t := range terms {
			f, ok := tf[t]
			if !ok {
				continue
			}
			score += computeIDF(n, int64(l.docFreq[t])) * computeTFNorm(float64(f), float64(l.docLens[pos]), l.avgLen)
		}
		if score > 0 {
			hits = append(hits, hit{pos: pos, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// computeIDF is the non-negative BM25 idf, positive even when a term occurs
// in every chunk.
func computeIDF(totalDocs, docFreq int64) float64 {
	return math.Log(1 + (float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
