package remarks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/llmjson"
	"github.com/kalambet/sverka/internal/metrics"
)

const (
	DefaultDistanceThreshold = 0.18
	DefaultMaxPerSynthesis   = 10
)

const synthesisPrompt = `Below are review remarks that say the same thing in different words. Write a short name for the group and one remark that combines all of them without losing any specific detail. Use the language of the remarks.

REMARKS:
%s

Reply with a JSON object only: {"group_name": "...", "synthesized_remark": "..."}`

var synthesisSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"group_name":         {Type: "string", Description: "short name of the group"},
		"synthesized_remark": {Type: "string", Description: "one remark combining all remarks"},
	},
	Required: []string{"group_name", "synthesized_remark"},
}

// Chatter sends one chat request. governor.Governor implements it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Clusterer groups remarks by embedding and synthesises multi-member groups.
type Clusterer struct {
	chat      Chatter
	model     string
	threshold float64
	maxPer    int
	metrics   *metrics.Metrics
}

// NewClusterer returns a Clusterer. Non-positive threshold or maxPer take
// the defaults 0.18 and 10. m may be nil.
func NewClusterer(chat Chatter, model string, threshold float64, maxPer int, m *metrics.Metrics) *Clusterer {
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}
	if maxPer <= 0 {
		maxPer = DefaultMaxPerSynthesis
	}
	return &Clusterer{chat: chat, model: model, threshold: threshold, maxPer: maxPer, metrics: m}
}

// ClusterAndSynthesize clusters remarks, whose ids index vectors, and
// returns one group per cluster in cluster order plus an audit entry per
// multi-member cluster. Synthesis failures fall back to "untitled" with the
// cluster's first remark.
func (c *Clusterer) ClusterAndSynthesize(ctx context.Context, remarks []Remark, vectors [][]float32) ([]Group, []Synthesis, error) {
	switch {
	case len(remarks) == 0:
		return []Group{}, []Synthesis{}, nil
	case len(remarks) == 1:
		return []Group{singleton(remarks[0].Text)}, []Synthesis{}, nil
	case len(vectors) != len(remarks):
		return nil, nil, fmt.Errorf("clustering: %d vectors for %d remarks", len(vectors), len(remarks))
	}

	clusters := Cluster(vectors, c.threshold)
	slog.Debug("remarks clustered", "remarks", len(remarks), "clusters", len(clusters))

	groups := make([]Group, len(clusters))
	audit := make([]*Synthesis, len(clusters))
	var wg sync.WaitGroup
	for i, members := range clusters {
		if len(members) == 1 {
			groups[i] = singleton(remarks[members[0]].Text)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			texts := make([]string, len(members))
			for j, m := range members {
				texts[j] = remarks[m].Text
			}
			champions := Champions(members, vectors, c.maxPer)
			name, summary := c.synthesize(ctx, remarks, champions, texts[0])
			groups[i] = Group{TextToClassify: summary, GroupName: name, OriginalRemarks: texts}
			audit[i] = &Synthesis{GroupName: name, SynthesizedRemark: summary, OriginalDuplicates: texts}
		}()
	}
	wg.Wait()

	report := make([]Synthesis, 0, len(clusters))
	for _, s := range audit {
		if s != nil {
			report = append(report, *s)
		}
	}
	return groups, report, nil
}

func (c *Clusterer) synthesize(ctx context.Context, remarks []Remark, champions []int, first string) (name, summary string) {
	var list strings.Builder
	for i, idx := range champions {
		fmt.Fprintf(&list, "%d. %s\n", i+1, remarks[idx].Text)
	}

	resp, err := c.chat.Chat(ctx, c.model, engine.UserMessage(fmt.Sprintf(synthesisPrompt, strings.TrimSpace(list.String()))), synthesisSchema)
	if err == nil {
		name, summary, err = decodeSynthesis(resp)
	}
	if err != nil {
		slog.Warn("synthesis failed, using first remark", "members", len(champions), "error", err)
		c.metrics.Fallback("synthesize")
		return untitledGroupName, first
	}
	return name, summary
}

var errEmptySynthesis = errors.New("synthesis has empty fields")

func decodeSynthesis(resp string) (string, string, error) {
	var out struct {
		GroupName         string `json:"group_name"`
		SynthesizedRemark string `json:"synthesized_remark"`
	}
	if err := llmjson.Decode(resp, &out); err != nil {
		return "", "", err
	}
	name := strings.TrimSpace(out.GroupName)
	summary := strings.TrimSpace(out.SynthesizedRemark)
	if name == "" || summary == "" {
		return "", "", errEmptySynthesis
	}
	return name, summary, nil
}
