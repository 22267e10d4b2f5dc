package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kalambet/sverka/internal/remarks"
	"github.com/kalambet/sverka/internal/verify"
)

// Entry is one criterion and its verdict.
type Entry struct {
	Criterion string
	Verdict   verify.Verdict
}

// VerificationReport holds verdicts in checklist order. It marshals to a
// JSON object keyed by criterion, keys in checklist order; a repeated
// criterion gets the smallest free " #n" suffix (n >= 2) that is neither
// another criterion nor an earlier key, so no entry is lost.
type VerificationReport struct {
	RunID   string
	Project string
	Entries []Entry
}

func (r *VerificationReport) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys() {
		e := r.Entries[i]
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Verdict)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// keys returns one distinct JSON key per entry.
func (r *VerificationReport) keys() []string {
	taken := make(map[string]bool, len(r.Entries))
	for _, e := range r.Entries {
		taken[e.Criterion] = true
	}
	used := make(map[string]bool, len(r.Entries))
	next := make(map[string]int)
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		key := e.Criterion
		if used[key] {
			n := max(next[e.Criterion], 2)
			for {
				key = fmt.Sprintf("%s #%d", e.Criterion, n)
				n++
				if !taken[key] && !used[key] {
					break
				}
			}
			next[e.Criterion] = n
		}
		used[key] = true
		out[i] = key
	}
	return out
}

// Counts returns the number of verdicts per status.
func (r *VerificationReport) Counts() map[verify.Status]int {
	out := make(map[verify.Status]int)
	for _, e := range r.Entries {
		out[e.Verdict.Status]++
	}
	return out
}

// CategoryItems is one classification report entry.
type CategoryItems struct {
	Category string          `json:"category"`
	Items    []remarks.Group `json:"items"`
}

// RemarksReport is the result of one remark batch.
type RemarksReport struct {
	RunID          string                         `json:"run_id"`
	Classification []CategoryItems                `json:"classification"`
	Synthesis      map[string][]remarks.Synthesis `json:"synthesis"`
}
