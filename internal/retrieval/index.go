package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Equal static weights of the two rankers in the merged score.
const (
	lexicalWeight = 0.5
	vectorWeight  = 0.5
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CorpusEmbedder embeds a whole corpus in one call.
type CorpusEmbedder interface {
	QueryEmbedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// HybridIndex ranks a fixed chunk corpus by BM25 and by embedding cosine
// similarity and merges both lists.
//
// Merged score: each ranker's top-k scores are min-max normalised to [0, 1]
// (a list of equal scores normalises to 1), then
// 0.5*lexical + 0.5*vector, a missing side counting as 0. Equal merged
// scores keep first-seen order: the lexical list in rank order, then the
// vector list in rank order.
type HybridIndex struct {
	chunks   []Chunk
	vectors  [][]float32
	lexical  *lexicalRanker
	vector   *vectorRanker
	embedder QueryEmbedder
}

// Build embeds every chunk and constructs the index. It fails with
// ErrNoDocuments when chunks is empty.
func Build(ctx context.Context, chunks []Chunk, emb CorpusEmbedder) (*HybridIndex, error) {
	if len(chunks) == 0 {
		return nil, ErrNoDocuments
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding corpus: %w", err)
	}
	return Restore(chunks, vectors, emb)
}

// Restore reconstructs an index from previously built chunks and vectors.
// The result answers Retrieve exactly as the index returned by Build did.
func Restore(chunks []Chunk, vectors [][]float32, emb QueryEmbedder) (*HybridIndex, error) {
	if len(chunks) == 0 {
		return nil, ErrNoDocuments
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("restoring index: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return &HybridIndex{
		chunks:   chunks,
		vectors:  vectors,
		lexical:  newLexicalRanker(chunks),
		vector:   newVectorRanker(vectors),
		embedder: emb,
	}, nil
}

// Len returns the number of indexed chunks.
func (ix *HybridIndex) Len() int { return len(ix.chunks) }

// Chunks returns the indexed chunks in index order. Callers must not modify it.
func (ix *HybridIndex) Chunks() []Chunk { return ix.chunks }

// Vectors returns the chunk embeddings aligned with Chunks. Callers must not modify it.
func (ix *HybridIndex) Vectors() [][]float32 { return ix.vectors }

// Retrieve returns at most k chunks for query, best first, without
// exact-content duplicates. If the query cannot be embedded the lexical
// ranking is used alone.
func (ix *HybridIndex) Retrieve(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	lex := ix.lexical.topK(query, k)

	var vec []hit
	qv, err := ix.embedder.Embed(ctx, query)
	switch {
	case err == nil:
		vec = ix.vector.topK(qv, k)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		slog.Warn("query embedding failed, using lexical ranking only", "query", query, "error", err)
	}

	return ix.merge(lex, vec, k), nil
}

type pooled struct {
	pos   int
	score float64
}

func (ix *HybridIndex) merge(lex, vec []hit, k int) []ScoredChunk {
	byPos := make(map[int]*pooled, len(lex)+len(vec))
	var order []*pooled

	add := func(hits []hit, weight float64) {
		for i, n := range minMax(hits) {
			p, ok := byPos[hits[i].pos]
			if !ok {
				p = &pooled{pos: hits[i].pos}
				byPos[p.pos] = p
				order = append(order, p)
			}
			p.score += weight * n
		}
	}
	add(lex, lexicalWeight)
	add(vec, vectorWeight)

	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })

	out := make([]ScoredChunk, 0, min(k, len(order)))
	seen := make(map[string]struct{}, len(order))
	for _, p := range order {
		if len(out) == k {
			break
		}
		c := ix.chunks[p.pos]
		if _, dup := seen[c.Content]; dup {
			continue
		}
		seen[c.Content] = struct{}{}
		out = append(out, ScoredChunk{Chunk: c, Score: p.score})
	}
	return out
}

// minMax maps hit scores onto [0, 1]. Equal scores all map to 1.
func minMax(hits []hit) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	lo, hi := hits[0].score, hits[0].score
	for _, h := range hits[1:] {
		lo = min(lo, h.score)
		hi = max(hi, h.score)
	}
	for i, h := range hits {
		if hi == lo {
			out[i] = 1
		} else {
			out[i] = (h.score - lo) / (hi - lo)
		}
	}
	return out
}
