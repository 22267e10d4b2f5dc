package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sverka/internal/metrics"
	"github.com/kalambet/sverka/internal/remarks"
	"github.com/kalambet/sverka/internal/retrieval"
	"github.com/kalambet/sverka/internal/taxonomy"
)

// UncategorizedKey is the batch key for remarks without a known category.
const UncategorizedKey = "uncategorized"

const classifyWorkers = 4

// Batch is a remark batch: remarks per category key plus the display names
// of already known categories.
type Batch struct {
	Remarks    map[string][]string `json:"remarks"`
	Categories []string            `json:"categories,omitempty"`
}

// RemarksConfig configures a Remarks pipeline.
type RemarksConfig struct {
	Chat                taxonomy.Chatter
	Model               string
	Embedder            retrieval.CorpusEmbedder
	DistanceThreshold   float64
	MaxPerSynthesis     int
	ConfidenceThreshold float64
	TaxonomyPath        string
	Metrics             *metrics.Metrics
}

// Remarks clusters, synthesises and classifies remark batches. Each run
// loads the taxonomy file, extends it in memory and writes it back once.
// Runs are serialized so concurrent runs cannot lose taxonomy additions.
type Remarks struct {
	cfg       RemarksConfig
	clusterer *remarks.Clusterer
	mu        sync.Mutex
}

func NewRemarks(cfg RemarksConfig) *Remarks {
	return &Remarks{
		cfg:       cfg,
		clusterer: remarks.NewClusterer(cfg.Chat, cfg.Model, cfg.DistanceThreshold, cfg.MaxPerSynthesis, cfg.Metrics),
	}
}

// Run processes b. Keys are handled in sorted order with uncategorized
// last and clusters never span keys. Every remark ends up in exactly one
// classified group. Only an unreadable taxonomy file fails the run.
func (p *Remarks) Run(ctx context.Context, b Batch) (*RemarksReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	runID := uuid.NewString()
	start := time.Now()

	classifier, err := p.classifier(b.Categories)
	if err != nil {
		return nil, err
	}
	tax := classifier.Taxonomy()

	report := &RemarksReport{RunID: runID, Classification: []CategoryItems{}, Synthesis: map[string][]remarks.Synthesis{}}
	var groups []remarks.Group
	for _, key := range batchKeys(b.Remarks) {
		gs, audit := p.group(ctx, key, b.Remarks[key])
		groups = append(groups, gs...)
		if len(audit) > 0 {
			report.Synthesis[key] = audit
		}
	}

	assignments := make([]taxonomy.Assignment, len(groups))
	var g errgroup.Group
	g.SetLimit(classifyWorkers)
	for i, grp := range groups {
		g.Go(func() error {
			assignments[i] = classifier.Classify(ctx, grp.TextToClassify)
			return nil
		})
	}
	g.Wait()

	report.Classification = assemble(groups, assignments)

	p.save(tax)
	slog.Info("remark batch processed", "run_id", runID, "groups", len(groups),
		"categories", len(report.Classification), "duration", time.Since(start))
	return report, nil
}

// Classify assigns a single text a major and sub category, persisting any
// sub-category coined for it.
func (p *Remarks) Classify(ctx context.Context, text string) (taxonomy.Assignment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	classifier, err := p.classifier(nil)
	if err != nil {
		return taxonomy.Assignment{}, err
	}
	a := classifier.Classify(ctx, text)
	p.save(classifier.Taxonomy())
	return a, nil
}

func (p *Remarks) classifier(known []string) (*taxonomy.Classifier, error) {
	tax, err := taxonomy.Load(p.cfg.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	for _, name := range known {
		tax.AddMajor(name)
	}
	return taxonomy.NewCascade(tax, p.cfg.Chat, p.cfg.Model, p.cfg.Embedder, p.cfg.ConfidenceThreshold, p.cfg.Metrics), nil
}

func (p *Remarks) save(tax *taxonomy.Taxonomy) {
	if p.cfg.TaxonomyPath == "" {
		return
	}
	if err := tax.Save(p.cfg.TaxonomyPath); err != nil {
		slog.Error("taxonomy not saved", "path", p.cfg.TaxonomyPath, "error", err)
	}
}

// group dedupes, embeds and clusters one key. When embedding or clustering
// fails every remark becomes its own group.
func (p *Remarks) group(ctx context.Context, key string, texts []string) ([]remarks.Group, []remarks.Synthesis) {
	rs := remarks.Dedupe(texts)
	if len(rs) < 2 {
		groups, _, _ := p.clusterer.ClusterAndSynthesize(ctx, rs, nil)
		return groups, nil
	}

	vectors, err := p.cfg.Embedder.EmbedBatch(ctx, remarks.Texts(rs))
	if err != nil {
		slog.Warn("remark embedding failed, keeping remarks unclustered", "key", key, "error", err)
		p.cfg.Metrics.Fallback("cluster")
		return remarks.Singletons(rs), nil
	}
	groups, audit, err := p.clusterer.ClusterAndSynthesize(ctx, rs, vectors)
	if err != nil {
		slog.Warn("remark clustering failed, keeping remarks unclustered", "key", key, "error", err)
		p.cfg.Metrics.Fallback("cluster")
		return remarks.Singletons(rs), nil
	}
	return groups, audit
}

// batchKeys returns keys sorted with the uncategorized key last.
func batchKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	hasUncategorized := false
	for k := range m {
		if k == UncategorizedKey {
			hasUncategorized = true
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if hasUncategorized {
		keys = append(keys, UncategorizedKey)
	}
	return keys
}

// assemble buckets groups by assignment key, buckets ordered by first
// appearance.
func assemble(groups []remarks.Group, assignments []taxonomy.Assignment) []CategoryItems {
	out := []CategoryItems{}
	index := make(map[string]int)
	for i, grp := range groups {
		key := assignments[i].Key()
		j, ok := index[key]
		if !ok {
			j = len(out)
			index[key] = j
			out = append(out, CategoryItems{Category: key})
		}
		out[j].Items = append(out[j].Items, grp)
	}
	return out
}
