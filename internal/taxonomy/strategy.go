package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/llmjson"
)

// Level is the taxonomy level a query classifies at.
type Level string

const (
	LevelMajor Level = "major"
	LevelSub   Level = "sub"
)

// Query is one classification step: pick a label for Text at Level.
type Query struct {
	Text   string
	Level  Level
	Major  string
	Labels []string

	embed  func(ctx context.Context) ([]float32, error)
	vec    []float32
	vecErr error
	done   bool
}

// Vector returns the embedding of Text, computed at most once per query.
func (q *Query) Vector(ctx context.Context) ([]float32, error) {
	if !q.done {
		if q.embed == nil {
			q.vecErr = fmt.Errorf("no embedder for query")
		} else {
			q.vec, q.vecErr = q.embed(ctx)
		}
		q.done = true
	}
	return q.vec, q.vecErr
}

// Strategy decides a label for a query or declines with ok false.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, q *Query) (label string, ok bool)
}

// Embedder embeds texts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chatter sends one chat request. governor.Governor implements it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// LabelCache memoises label embeddings; concurrent misses for the same
// label share one request.
type LabelCache struct {
	emb   Embedder
	group singleflight.Group
	mu    sync.RWMutex
	vecs  map[string][]float32
}

func NewLabelCache(emb Embedder) *LabelCache {
	return &LabelCache{emb: emb, vecs: make(map[string][]float32)}
}

// Vector returns the cached embedding of label, embedding it on first use.
func (c *LabelCache) Vector(ctx context.Context, label string) ([]float32, error) {
	c.mu.RLock()
	v, ok := c.vecs[label]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := c.group.Do(label, func() (any, error) {
		vec, err := c.emb.Embed(ctx, label)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.vecs[label] = vec
		c.mu.Unlock()
		return vec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding label %q: %w", label, err)
	}
	return res.([]float32), nil
}

// EmbeddingMatch accepts the most similar label when its cosine similarity
// reaches Threshold.
type EmbeddingMatch struct {
	Labels    *LabelCache
	Threshold float64
}

func (s *EmbeddingMatch) Name() string { return "embedding" }

func (s *EmbeddingMatch) Decide(ctx context.Context, q *Query) (string, bool) {
	if len(q.Labels) == 0 {
		return "", false
	}
	vec, err := q.Vector(ctx)
	if err != nil {
		slog.Warn("embedding match skipped", "level", q.Level, "error", err)
		return "", false
	}

	best, bestSim := "", math.Inf(-1)
	for _, label := range q.Labels {
		lv, err := s.Labels.Vector(ctx, label)
		if err != nil {
			slog.Warn("embedding match skipped", "level", q.Level, "error", err)
			return "", false
		}
		if sim := cosine(vec, lv); sim > bestSim {
			best, bestSim = label, sim
		}
	}
	if bestSim >= s.Threshold {
		return best, true
	}
	slog.Debug("embedding match below threshold", "level", q.Level, "best", best, "similarity", bestSim)
	return "", false
}

// ModelPick asks the model to choose one of the query labels or answer
// NoneWord. Fallback, when set, is the decision on a NoneWord answer or a
// failure; otherwise those decline.
type ModelPick struct {
	Chat     Chatter
	Model    string
	NoneWord string
	Fallback string
}

func (s *ModelPick) Name() string { return "model" }

func (s *ModelPick) Decide(ctx context.Context, q *Query) (string, bool) {
	if len(q.Labels) == 0 {
		return s.Fallback, s.Fallback != ""
	}
	enum := append(append([]string(nil), q.Labels...), s.NoneWord)
	resp, err := s.Chat.Chat(ctx, s.Model, engine.UserMessage(pickPrompt(q, s.NoneWord)), labelSchema(enum))
	var label string
	if err == nil {
		label, err = parseLabel(resp)
	}
	if err != nil {
		slog.Warn("model classification failed", "level", q.Level, "error", err)
		return s.Fallback, s.Fallback != ""
	}
	if strings.EqualFold(label, s.NoneWord) {
		return s.Fallback, s.Fallback != ""
	}
	if known, ok := find(q.Labels, label); ok {
		return known, true
	}
	return label, true
}

// Coinage asks the model for a new sub-category name and records it in the
// taxonomy. An existing name is reused rather than duplicated.
type Coinage struct {
	Chat     Chatter
	Model    string
	Taxonomy *Taxonomy
}

func (s *Coinage) Name() string { return "coinage" }

func (s *Coinage) Decide(ctx context.Context, q *Query) (string, bool) {
	resp, err := s.Chat.Chat(ctx, s.Model, engine.UserMessage(fmt.Sprintf(coinPrompt, q.Major, q.Text)), labelSchema(nil))
	var label string
	if err == nil {
		label, err = parseLabel(resp)
	}
	if err != nil {
		slog.Warn("sub-category coinage failed", "major", q.Major, "error", err)
		return "", false
	}
	if strings.EqualFold(label, "none") {
		return "", false
	}
	stored, added := s.Taxonomy.AddSub(label)
	if added {
		slog.Info("new sub-category", "major", q.Major, "sub", stored)
	}
	return stored, true
}

const labelKey = "category"

func labelSchema(enum []string) *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			labelKey: {Type: "string", Enum: enum},
		},
		Required: []string{labelKey},
	}
}

const coinPrompt = `Propose a short name (two to five words) for a new sub-category of %q that describes the remark below. Use the language of the remark.

REMARK: %q

Reply with a JSON object only: {"category": "..."}`

func pickPrompt(q *Query, none string) string {
	var b strings.Builder
	if q.Level == LevelSub {
		fmt.Fprintf(&b, "The remark belongs to the category %q. Assign it to one of the sub-categories below.", q.Major)
	} else {
		b.WriteString("Assign the remark to one of the categories below.")
	}
	fmt.Fprintf(&b, " Answer with the name exactly as listed, or %q if none fits.\n\nCATEGORIES:\n", none)
	for _, l := range q.Labels {
		fmt.Fprintf(&b, "- %s\n", l)
	}
	fmt.Fprintf(&b, "\nREMARK: %q\n\nReply with a JSON object only: {\"category\": \"...\"}", q.Text)
	return b.String()
}

// parseLabel reads the category key of a JSON reply, or else the first
// non-empty line of a plain reply.
func parseLabel(resp string) (string, error) {
	if fields, err := llmjson.Fields(resp); err == nil {
		v, ok, err := llmjson.String(fields, labelKey)
		if err != nil {
			return "", err
		}
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
		return "", fmt.Errorf("reply has no %q value", labelKey)
	}
	for _, line := range strings.Split(llmjson.Clean(resp), "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"'«».`)
		if line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("empty reply")
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
