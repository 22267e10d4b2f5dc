package taxonomy

import (
	"context"

	"github.com/kalambet/sverka/internal/metrics"
)

const (
	DefaultConfidenceThreshold = 0.75

	// OtherMajor is the major category of texts no category fits.
	OtherMajor = "other"
	// Unclassified is the sub-category when no strategy decides.
	Unclassified = "could not classify"
)

// Assignment is a classification result.
type Assignment struct {
	Major string `json:"major"`
	Sub   string `json:"sub"`
}

// Key renders the report key "major / sub".
func (a Assignment) Key() string { return a.Major + " / " + a.Sub }

// Classifier evaluates ordered strategies per level until one decides.
type Classifier struct {
	tax     *Taxonomy
	emb     Embedder
	major   []Strategy
	sub     []Strategy
	metrics *metrics.Metrics
}

// NewClassifier builds a classifier from explicit strategy lists. emb embeds
// the classified text for embedding strategies and may be nil.
func NewClassifier(tax *Taxonomy, emb Embedder, major, sub []Strategy, m *metrics.Metrics) *Classifier {
	return &Classifier{tax: tax, emb: emb, major: major, sub: sub, metrics: m}
}

// NewCascade returns the standard cascade: major by embedding match then
// model pick (defaulting to "other"); sub by embedding match, model pick,
// then coinage of a new sub-category.
func NewCascade(tax *Taxonomy, chat Chatter, model string, emb Embedder, threshold float64, m *metrics.Metrics) *Classifier {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	labels := NewLabelCache(emb)
	return NewClassifier(tax, emb,
		[]Strategy{
			&EmbeddingMatch{Labels: labels, Threshold: threshold},
			&ModelPick{Chat: chat, Model: model, NoneWord: OtherMajor, Fallback: OtherMajor},
		},
		[]Strategy{
			&EmbeddingMatch{Labels: labels, Threshold: threshold},
			&ModelPick{Chat: chat, Model: model, NoneWord: "none"},
			&Coinage{Chat: chat, Model: model, Taxonomy: tax},
		},
		m,
	)
}

// Taxonomy returns the taxonomy the classifier reads and extends.
func (c *Classifier) Taxonomy() *Taxonomy { return c.tax }

// Classify assigns text a major and sub category. It never fails.
func (c *Classifier) Classify(ctx context.Context, text string) Assignment {
	q := &Query{Text: text, Level: LevelMajor, Labels: c.tax.Majors()}
	if c.emb != nil {
		q.embed = func(ctx context.Context) ([]float32, error) { return c.emb.Embed(ctx, text) }
	}

	major := c.run(ctx, c.major, q, OtherMajor)
	if major == OtherMajor {
		return Assignment{Major: OtherMajor, Sub: Unclassified}
	}

	q.Level, q.Major, q.Labels = LevelSub, major, c.tax.Subs()
	sub := c.run(ctx, c.sub, q, Unclassified)
	return Assignment{Major: major, Sub: sub}
}

func (c *Classifier) run(ctx context.Context, strategies []Strategy, q *Query, fallback string) string {
	for _, s := range strategies {
		if label, ok := s.Decide(ctx, q); ok {
			c.metrics.Classified(string(q.Level), s.Name())
			return label
		}
	}
	c.metrics.Classified(string(q.Level), "default")
	return fallback
}
