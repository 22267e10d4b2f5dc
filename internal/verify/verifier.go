// Package verify judges checklist criteria against a document index.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/metrics"
	"github.com/kalambet/sverka/internal/retrieval"
)

// Retriever returns at most k chunks for a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.ScoredChunk, error)
}

// Verifier expands a criterion, pools evidence across query variants and
// asks the model for a structured verdict.
type Verifier struct {
	expander *Expander
	chat     Chatter
	model    string
	topK     int
	metrics  *metrics.Metrics
}

// NewVerifier returns a Verifier selecting topK evidence chunks. chat should
// be the process governor. m may be nil.
func NewVerifier(chat Chatter, model string, topK int, m *metrics.Metrics) *Verifier {
	if topK < 1 {
		topK = 1
	}
	return &Verifier{
		expander: NewExpander(chat, model, m),
		chat:     chat,
		model:    model,
		topK:     topK,
		metrics:  m,
	}
}

// Verify judges criterion against idx. It never fails: backend and
// decoding problems become requires_confirmation verdicts.
func (v *Verifier) Verify(ctx context.Context, idx Retriever, criterion string) Verdict {
	verdict := v.verify(ctx, idx, criterion)
	v.metrics.Verdict(string(verdict.Status))
	return verdict
}

func (v *Verifier) verify(ctx context.Context, idx Retriever, criterion string) Verdict {
	queries := v.expander.Expand(ctx, criterion)

	evidence, err := v.gather(ctx, idx, queries)
	if err != nil {
		slog.Warn("retrieval failed", "criterion", criterion, "error", err)
		v.metrics.Fallback("retrieve")
		return FailedVerdict(err)
	}
	if len(evidence) == 0 {
		return noEvidenceVerdict()
	}

	prompt := fmt.Sprintf(verdictPrompt, evidenceContext(evidence), criterion)
	resp, err := v.chat.Chat(ctx, v.model, engine.UserMessage(prompt), verdictSchema)

	var verdict Verdict
	switch {
	case err != nil:
		slog.Warn("verdict request failed", "criterion", criterion, "error", err)
		v.metrics.Fallback("verify")
		verdict = FailedVerdict(err)
	default:
		verdict, err = decodeVerdict(resp)
		if err != nil {
			slog.Warn("verdict response unusable", "criterion", criterion, "error", err)
			v.metrics.Fallback("verify")
			verdict = malformedVerdict(resp, err)
		}
	}
	verdict.Sources = sources(evidence)
	return verdict
}

// gather retrieves every query in parallel, pools results by exact content
// keeping each chunk's best score, and returns the topK best.
func (v *Verifier) gather(ctx context.Context, idx Retriever, queries []string) ([]retrieval.ScoredChunk, error) {
	results := make([][]retrieval.ScoredChunk, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			hits, err := idx.Retrieve(gCtx, q, v.topK)
			if err != nil {
				return fmt.Errorf("retrieving %q: %w", q, err)
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pool(results, v.topK), nil
}

// pool merges result lists by exact chunk content, keeping the maximum
// score. Equal scores keep first-seen order across lists.
func pool(results [][]retrieval.ScoredChunk, k int) []retrieval.ScoredChunk {
	byContent := make(map[string]int)
	var pooled []retrieval.ScoredChunk
	for _, hits := range results {
		for _, h := range hits {
			if i, ok := byContent[h.Content]; ok {
				pooled[i].Score = max(pooled[i].Score, h.Score)
				continue
			}
			byContent[h.Content] = len(pooled)
			pooled = append(pooled, h)
		}
	}
	sort.SliceStable(pooled, func(i, j int) bool { return pooled[i].Score > pooled[j].Score })
	if len(pooled) > k {
		pooled = pooled[:k]
	}
	return pooled
}

func sources(evidence []retrieval.ScoredChunk) []Source {
	out := make([]Source, len(evidence))
	for i, c := range evidence {
		out[i] = Source{SourceID: c.SourceID, Page: c.Page, Slide: c.Slide, Snippet: c.Content}
	}
	return out
}
