// Package remarks groups free-text review remarks into clusters and asks the
// model to name and summarise each multi-member cluster.
package remarks

import "strings"

// Remark is a deduplicated remark. IDs are dense, 0..N-1 in first-seen
// order, and index the embedding matrix.
type Remark struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Group is one cluster ready for classification.
type Group struct {
	TextToClassify  string   `json:"text_to_classify"`
	GroupName       string   `json:"group_name"`
	OriginalRemarks []string `json:"original_remarks"`
}

// Synthesis is the audit record of one multi-member cluster.
type Synthesis struct {
	GroupName          string   `json:"group_name"`
	SynthesizedRemark  string   `json:"synthesized_remark"`
	OriginalDuplicates []string `json:"original_duplicates"`
}

const (
	uniqueGroupName   = "unique"
	untitledGroupName = "untitled"
)

// Dedupe drops whitespace-only texts and exact repeats and assigns dense
// ids in first-seen order. Texts differing only in surrounding whitespace
// stay distinct.
func Dedupe(texts []string) []Remark {
	seen := make(map[string]struct{}, len(texts))
	out := make([]Remark, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, Remark{ID: len(out), Text: t})
	}
	return out
}

// Texts returns the remark texts in id order.
func Texts(rs []Remark) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Text
	}
	return out
}

// Singletons returns one "unique" group per remark, used when clustering
// is impossible.
func Singletons(rs []Remark) []Group {
	out := make([]Group, len(rs))
	for i, r := range rs {
		out[i] = singleton(r.Text)
	}
	return out
}

func singleton(text string) Group {
	return Group{TextToClassify: text, GroupName: uniqueGroupName, OriginalRemarks: []string{text}}
}
